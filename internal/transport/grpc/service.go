package grpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sreeram77/battery-pm/internal/predictor"
)

const (
	// ServiceName is the fully qualified gRPC service name
	ServiceName = "battery.v1.PredictionService"
	// PredictMethod is the full method path of Predict
	PredictMethod = "/" + ServiceName + "/Predict"

	noTelemetryMessage = "No telemetry data provided"
)

// Predictor serves a single RUL prediction
type Predictor interface {
	Predict(ctx context.Context, telemetry map[string]float64) (predictor.Prediction, error)
}

// PredictionServiceServer is the server API for the prediction service.
// Requests and responses are JSON-shaped google.protobuf.Struct values.
type PredictionServiceServer interface {
	Predict(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// RegisterPredictionServiceServer registers srv on s
func RegisterPredictionServiceServer(s grpc.ServiceRegistrar, srv PredictionServiceServer) {
	s.RegisterService(&predictionServiceDesc, srv)
}

var predictionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PredictionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Predict",
			Handler:    predictHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "battery/v1/prediction.proto",
}

func predictHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PredictionServiceServer).Predict(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: PredictMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PredictionServiceServer).Predict(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// PredictionService adapts a Predictor to PredictionServiceServer
type PredictionService struct {
	logger    zerolog.Logger
	predictor Predictor
}

// NewPredictionService creates a new prediction service
func NewPredictionService(logger zerolog.Logger, predictor Predictor) *PredictionService {
	return &PredictionService{
		logger:    logger.With().Str("service", "prediction").Logger(),
		predictor: predictor,
	}
}

// Predict implements PredictionServiceServer
func (s *PredictionService) Predict(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	telemetry, err := decodeTelemetry(in)
	if err != nil {
		return nil, err
	}

	p, err := s.predictor.Predict(ctx, telemetry)
	switch {
	case errors.Is(err, predictor.ErrNoTelemetry):
		return nil, status.Error(codes.InvalidArgument, noTelemetryMessage)
	case err != nil:
		s.logger.Error().Err(err).Msg("Prediction failed")
		return nil, status.Error(codes.Internal, err.Error())
	}

	out, err := structpb.NewStruct(map[string]interface{}{
		"rul_prediction": p.RUL,
		"details": map[string]interface{}{
			"regression_model_prediction": p.Regression,
			"lstm_model_prediction":       p.Sequence,
		},
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

func decodeTelemetry(in *structpb.Struct) (map[string]float64, error) {
	fields := in.GetFields()["telemetry"].GetStructValue().GetFields()
	if len(fields) == 0 {
		return nil, status.Error(codes.InvalidArgument, noTelemetryMessage)
	}

	telemetry := make(map[string]float64, len(fields))
	for name, v := range fields {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "telemetry value %q is not a number", name)
		}
		telemetry[name] = n.NumberValue
	}
	return telemetry, nil
}

// PredictionClient calls the prediction service
type PredictionClient struct {
	cc grpc.ClientConnInterface
}

// NewPredictionClient creates a client over cc
func NewPredictionClient(cc grpc.ClientConnInterface) *PredictionClient {
	return &PredictionClient{cc: cc}
}

// Predict sends raw request to the service
func (c *PredictionClient) Predict(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PredictMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// PredictTelemetry wraps telemetry in a request and returns the decoded prediction
func (c *PredictionClient) PredictTelemetry(ctx context.Context, telemetry map[string]float64) (predictor.Prediction, error) {
	values := make(map[string]interface{}, len(telemetry))
	for k, v := range telemetry {
		values[k] = v
	}
	in, err := structpb.NewStruct(map[string]interface{}{"telemetry": values})
	if err != nil {
		return predictor.Prediction{}, fmt.Errorf("failed to encode request: %w", err)
	}

	out, err := c.Predict(ctx, in)
	if err != nil {
		return predictor.Prediction{}, err
	}

	details := out.GetFields()["details"].GetStructValue().GetFields()
	return predictor.Prediction{
		RUL:        out.GetFields()["rul_prediction"].GetNumberValue(),
		Regression: details["regression_model_prediction"].GetNumberValue(),
		Sequence:   details["lstm_model_prediction"].GetNumberValue(),
	}, nil
}
