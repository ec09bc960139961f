package grpcclient

import (
	"context"
	"errors"
	"net"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/TrueFaces/CNN-FineTuning/internal/logging"
	"github.com/TrueFaces/CNN-FineTuning/internal/model"
)

const testMethod = "/truefaces.classifier.v1.FaceClassifier/Predict"

// startModelServer serves a fake classifier that returns the mean of the input data.
func startModelServer(t *testing.T, fail bool) *grpc.ClientConn {
	t.Helper()

	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: "truefaces.classifier.v1.FaceClassifier",
		HandlerType: (*interface{})(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "Predict",
			Handler: func(_ interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(structpb.Struct)
				if err := dec(in); err != nil {
					return nil, err
				}
				if fail {
					return nil, status.Error(codes.Unavailable, "model offline")
				}
				values := in.GetFields()["data"].GetListValue().GetValues()
				var sum float64
				for _, v := range values {
					sum += v.GetNumberValue()
				}
				return wrapperspb.Float(float32(sum / float64(len(values)))), nil
			},
		}},
	}, struct{}{})

	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial bufconn: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestClassifierForwardsTensor(t *testing.T) {
	classifier := NewClassifier(startModelServer(t, false), testMethod, zap.NewNop())

	input := model.NewTensor(1, 2, 2, 1)
	copy(input.Data, []float32{0.25, 0.75, 0.5, 0.5})

	score, err := classifier.Predict(context.Background(), input)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if score != 0.5 {
		t.Fatalf("expected 0.5, got %f", score)
	}
}

func TestClassifierWrapsServerErrors(t *testing.T) {
	classifier := NewClassifier(startModelServer(t, true), testMethod, zap.NewNop())

	_, err := classifier.Predict(context.Background(), model.NewTensor(1, 1, 1, 1))
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var opErr *logging.OperationError
	if !errors.As(err, &opErr) || opErr.Operation != "grpcclient.predict" {
		t.Fatalf("expected grpcclient.predict OperationError, got %v", err)
	}
	if status.Code(errors.Unwrap(err)) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", status.Code(errors.Unwrap(err)))
	}
}

func TestClassifierRejectsMalformedTensor(t *testing.T) {
	classifier := NewClassifier(startModelServer(t, false), testMethod, zap.NewNop())

	_, err := classifier.Predict(context.Background(), model.Tensor{Shape: []int{1, 2}, Data: []float32{1}})
	if !errors.Is(err, model.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestClassifierIDNamesTargetAndMethod(t *testing.T) {
	classifier := NewClassifier(startModelServer(t, false), testMethod, zap.NewNop())

	if got, want := model.ID(classifier), "grpc:bufnet"+testMethod; got != want {
		t.Fatalf("expected model id %q, got %q", want, got)
	}
}
