package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/TrueFaces/CNN-FineTuning/internal/handlers"
	"github.com/TrueFaces/CNN-FineTuning/internal/logging"
	"github.com/TrueFaces/CNN-FineTuning/internal/model"
	"github.com/TrueFaces/CNN-FineTuning/internal/usecase"
)

// blockingClassifier holds every forward pass until release is closed.
type blockingClassifier struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingClassifier) Predict(ctx context.Context, input model.Tensor) (float32, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return 0.9, nil
}

func predictRequestBody(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	var encoded bytes.Buffer
	if err := png.Encode(&encoded, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "face.png")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(encoded.Bytes()); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestServerDrainsInFlightPredictionOnShutdown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	classifier := &blockingClassifier{started: make(chan struct{}), release: make(chan struct{})}
	releaseOnce := sync.OnceFunc(func() { close(classifier.release) })
	defer releaseOnce()

	router := newRouter(logger, handlers.Services{
		Predictions: usecase.NewPredictionUseCase(classifier, usecase.NoopCache{}, logger),
		Logger:      logger,
	}, func(c *gin.Context) { c.AbortWithStatus(http.StatusUnauthorized) })

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	server := &http.Server{Handler: router}

	signalCh := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		done <- serveHTTPServerWithOptions(server, 2*time.Second, logger, listener, signalCh)
	}()

	addr := listener.Addr().String()
	waitForServer(t, addr)

	body, contentType := predictRequestBody(t)
	client := &http.Client{Timeout: 3 * time.Second}
	respCh := make(chan *http.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		resp, err := client.Post("http://"+addr+"/predict", contentType, body)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	select {
	case <-classifier.started:
	case <-time.After(2 * time.Second):
		t.Fatal("prediction did not reach the model in time")
	}

	signalCh <- syscall.SIGTERM
	time.Sleep(50 * time.Millisecond)
	releaseOnce()

	select {
	case resp := <-respCh:
		defer resp.Body.Close()
		payload, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status: %d body: %s", resp.StatusCode, payload)
		}
		var result map[string]string
		if err := json.Unmarshal(payload, &result); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if result["filename"] != "face.png" || result["prediction"] != usecase.FaceLabel {
			t.Fatalf("unexpected prediction: %v", result)
		}
	case err := <-errCh:
		t.Fatalf("request failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server did not shut down cleanly: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit after shutdown")
	}

	if _, err := net.DialTimeout("tcp", addr, 100*time.Millisecond); err == nil {
		t.Fatal("listener still accepting connections after shutdown")
	}
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server %s did not become ready", addr)
}

func TestServerStopsWhenSignalChannelCloses(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	server := &http.Server{Handler: http.NotFoundHandler()}

	signalCh := make(chan os.Signal)
	done := make(chan error, 1)
	go func() {
		done <- serveHTTPServerWithOptions(server, time.Second, zap.NewNop(), listener, signalCh)
	}()
	waitForServer(t, listener.Addr().String())

	close(signalCh)
	if err := server.Close(); err != nil {
		t.Fatalf("failed to close server: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean exit, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit")
	}
}

func TestServeWithListenerReportsServeErrors(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	listener.Close()

	err = serveHTTPServerWithListener(&http.Server{Handler: http.NotFoundHandler()}, time.Second, zap.NewNop(), listener)
	if err == nil {
		t.Fatal("expected an error from a closed listener")
	}
}

func TestRouterServesStatusAndDocs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := newRouter(zap.NewNop(), handlers.Services{}, func(c *gin.Context) {
		c.AbortWithStatus(http.StatusUnauthorized)
	})

	for path, want := range map[string]int{
		"/":             http.StatusOK,
		"/openapi.json": http.StatusOK,
		"/redoc":        http.StatusOK,
		"/docs":         http.StatusOK,
		"/users/me":     http.StatusUnauthorized,
		"/images":       http.StatusUnauthorized,
	} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != want {
			t.Fatalf("%s: expected status %d, got %d", path, want, resp.Code)
		}
		if resp.Header().Get(logging.RequestIDHeader) == "" {
			t.Fatalf("%s: missing request id header", path)
		}
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()

	for _, name := range []string{"serve", "migrate"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("expected %q subcommand, got %v (%v)", name, cmd, err)
		}
	}
	if root.RunE == nil {
		t.Fatal("root command should serve by default")
	}
}
