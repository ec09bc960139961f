package grpcclient

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/TrueFaces/CNN-FineTuning/internal/logging"
	"github.com/TrueFaces/CNN-FineTuning/internal/model"
)

// DialClassifier connects to a remote model server and returns a classifier
// that forwards every forward pass to it.
//
// The server must expose a unary method (named by method, e.g.
// "/truefaces.classifier.v1.FaceClassifier/Predict") that accepts a
// google.protobuf.Struct {"shape": [...], "data": [...]} and answers with a
// google.protobuf.FloatValue holding the model output.
func DialClassifier(ctx context.Context, addr, method string, logger *zap.Logger) (model.Classifier, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_classifier", "", err)
		logger.Error("failed to dial model server", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewClassifier(conn, method, logger), conn, nil
}

// NewClassifier wraps an existing connection.
func NewClassifier(conn grpc.ClientConnInterface, method string, logger *zap.Logger) model.Classifier {
	id := "grpc:" + method
	if cc, ok := conn.(interface{ Target() string }); ok {
		id = "grpc:" + cc.Target() + method
	}
	return &grpcClassifier{conn: conn, method: method, id: id, logger: logger.Named("grpc_classifier")}
}

type grpcClassifier struct {
	conn   grpc.ClientConnInterface
	method string
	id     string
	logger *zap.Logger
}

// ModelID names the remote model by server target and method.
func (g *grpcClassifier) ModelID() string {
	return g.id
}

func (g *grpcClassifier) Predict(ctx context.Context, input model.Tensor) (float32, error) {
	requestID := logging.RequestID(ctx)

	req, err := encodeTensor(input)
	if err != nil {
		return 0, logging.NewOperationError("grpcclient.encode_tensor", requestID, err)
	}

	var resp wrapperspb.FloatValue
	if err := g.conn.Invoke(ctx, g.method, req, &resp); err != nil {
		wrapped := logging.NewOperationError("grpcclient.predict", requestID, err)
		g.logger.Error("model server call failed", zap.Error(wrapped), zap.String("method", g.method))
		return 0, wrapped
	}
	return resp.GetValue(), nil
}

func encodeTensor(input model.Tensor) (*structpb.Struct, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if len(input.Data) == 0 {
		return nil, errors.New("empty tensor")
	}

	shape := make([]*structpb.Value, len(input.Shape))
	for i, dim := range input.Shape {
		shape[i] = structpb.NewNumberValue(float64(dim))
	}
	data := make([]*structpb.Value, len(input.Data))
	for i, v := range input.Data {
		data[i] = structpb.NewNumberValue(float64(v))
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"shape": structpb.NewListValue(&structpb.ListValue{Values: shape}),
		"data":  structpb.NewListValue(&structpb.ListValue{Values: data}),
	}}, nil
}
