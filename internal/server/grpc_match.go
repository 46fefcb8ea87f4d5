package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caroarena/caro-server-go/internal/config"
	"github.com/caroarena/caro-server-go/internal/game"
	"github.com/caroarena/caro-server-go/internal/game/board"
	"github.com/caroarena/caro-server-go/internal/game/heuristic"
	"github.com/caroarena/caro-server-go/internal/game/pieces"
	"github.com/caroarena/caro-server-go/internal/replication"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const (
	MatchServiceName = "caro.v1.MatchService"
	// SeatTokenHeader carries the seat token on SubmitIntent calls.
	SeatTokenHeader = "x-caro-seat-token"
)

// MatchServiceServer is the server API for caro.v1.MatchService. Messages are
// google.protobuf.Struct documents so that clients need no generated stubs.
type MatchServiceServer interface {
	CreateMatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitIntent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSnapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TurnDeadline(context.Context, *structpb.Struct) (*timestamppb.Timestamp, error)
}

func structHandler(method string, call func(MatchServiceServer, context.Context, *structpb.Struct) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MatchServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + MatchServiceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MatchServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// MatchServiceDesc describes caro.v1.MatchService for grpc.ServiceRegistrar.
var MatchServiceDesc = grpc.ServiceDesc{
	ServiceName: MatchServiceName,
	HandlerType: (*MatchServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateMatch",
			Handler: structHandler("CreateMatch", func(s MatchServiceServer, ctx context.Context, in *structpb.Struct) (any, error) {
				return s.CreateMatch(ctx, in)
			}),
		},
		{
			MethodName: "SubmitIntent",
			Handler: structHandler("SubmitIntent", func(s MatchServiceServer, ctx context.Context, in *structpb.Struct) (any, error) {
				return s.SubmitIntent(ctx, in)
			}),
		},
		{
			MethodName: "GetSnapshot",
			Handler: structHandler("GetSnapshot", func(s MatchServiceServer, ctx context.Context, in *structpb.Struct) (any, error) {
				return s.GetSnapshot(ctx, in)
			}),
		},
		{
			MethodName: "TurnDeadline",
			Handler: structHandler("TurnDeadline", func(s MatchServiceServer, ctx context.Context, in *structpb.Struct) (any, error) {
				return s.TurnDeadline(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "caro/v1/match.proto",
}

func RegisterMatchServiceServer(s grpc.ServiceRegistrar, srv MatchServiceServer) {
	s.RegisterService(&MatchServiceDesc, srv)
}

// MatchServiceClient calls caro.v1.MatchService.
type MatchServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewMatchServiceClient(cc grpc.ClientConnInterface) *MatchServiceClient {
	return &MatchServiceClient{cc: cc}
}

func (c *MatchServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, out any, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, "/"+MatchServiceName+"/"+method, in, out, opts...)
}

func (c *MatchServiceClient) CreateMatch(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "CreateMatch", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitIntent sends the seat token as call metadata.
func (c *MatchServiceClient) SubmitIntent(ctx context.Context, token string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, SeatTokenHeader, token)
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "SubmitIntent", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MatchServiceClient) GetSnapshot(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "GetSnapshot", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MatchServiceClient) TurnDeadline(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*timestamppb.Timestamp, error) {
	out := new(timestamppb.Timestamp)
	if err := c.invoke(ctx, "TurnDeadline", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// matchServer implements MatchServiceServer on top of the authority.
type matchServer struct {
	logger     *zap.Logger
	authority  *replication.Authority
	seats      *SeatTokens
	difficulty heuristic.Difficulty
}

// NewMatchServer creates the gRPC front of the authority. difficulty applies to automated
// seats that do not name one.
func NewMatchServer(logger *zap.Logger, authority *replication.Authority, seats *SeatTokens, difficulty heuristic.Difficulty) MatchServiceServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &matchServer{logger: logger, authority: authority, seats: seats, difficulty: difficulty}
}

// CreateMatch expects {"match_id"?, "first"?, "seats": [{"roster": [ids], "bot"?, "difficulty"?}, x2]}
// and answers {"match_id", "tokens": {"1": ..., "2": ...}, "snapshot"}. Automated seats get
// no token.
func (s *matchServer) CreateMatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	seatList := req.GetFields()["seats"].GetListValue().GetValues()
	if len(seatList) != 2 {
		return nil, status.Errorf(codes.InvalidArgument, "exactly 2 seats are required, got %d", len(seatList))
	}

	create := game.CreateMatchRequest{
		ID:    strings.TrimSpace(stringField(req, "match_id")),
		First: board.Player(intField(req, "first", int(board.Player1))),
	}
	for i, v := range seatList {
		seat := v.GetStructValue()
		for _, id := range seat.GetFields()["roster"].GetListValue().GetValues() {
			create.Seats[i].Roster = append(create.Seats[i].Roster, int(id.GetNumberValue()))
		}
		create.Seats[i].Bot = seat.GetFields()["bot"].GetBoolValue()
		create.Seats[i].Difficulty = s.difficulty
		if name := stringField(seat, "difficulty"); name != "" {
			d, err := heuristic.ParseDifficulty(name)
			if err != nil {
				return nil, status.Error(codes.InvalidArgument, err.Error())
			}
			create.Seats[i].Difficulty = d
		}
	}
	if !create.First.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "first must be 1 or 2, got %d", create.First)
	}

	snap, err := s.authority.CreateMatch(create)
	if err != nil {
		return nil, grpcError(err)
	}

	tokens := map[string]any{}
	for i, seat := range create.Seats {
		if seat.Bot {
			continue
		}
		p := board.Player(i + 1)
		token, err := s.seats.Issue(snap.MatchID, p)
		if err != nil {
			return nil, grpcError(err)
		}
		tokens[strconv.Itoa(int(p))] = token
	}

	s.logger.Info("match created over grpc",
		zap.String("match_id", snap.MatchID),
		zap.Int("human_seats", len(tokens)),
	)
	return toStruct(map[string]any{
		"match_id": snap.MatchID,
		"tokens":   tokens,
		"snapshot": snap,
	})
}

// SubmitIntent expects {"match_id", "player", "kind", "slot"?, "row"?, "col"?} and the seat
// token under SeatTokenHeader. A rule rejection is a normal response with accepted=false.
func (s *matchServer) SubmitIntent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	matchID := stringField(req, "match_id")
	if matchID == "" {
		return nil, status.Error(codes.InvalidArgument, "match_id is required")
	}
	kind, err := game.ParseIntentKind(stringField(req, "kind"))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	in := game.Intent{
		Kind:   kind,
		Player: board.Player(intField(req, "player", 0)),
		Slot:   intField(req, "slot", 0),
		Pos:    board.Pos{Row: intField(req, "row", 0), Col: intField(req, "col", 0)},
	}

	token := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(SeatTokenHeader); len(values) > 0 {
			token = values[0]
		}
	}
	if err := s.seats.Verify(matchID, in.Player, token); err != nil {
		return nil, grpcError(err)
	}

	res, err := s.authority.Submit(matchID, in)
	if err != nil {
		return nil, grpcError(err)
	}
	out := map[string]any{"accepted": res.Accepted()}
	if !res.Accepted() {
		out["reason"] = string(res.Reason())
		out["detail"] = res.Rejection.Detail
	}
	return toStruct(out)
}

// GetSnapshot expects {"match_id"}.
func (s *matchServer) GetSnapshot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	snap, err := s.authority.Engine().Snapshot(stringField(req, "match_id"))
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(snap)
}

// TurnDeadline expects {"match_id"} and returns when the active turn runs out.
func (s *matchServer) TurnDeadline(ctx context.Context, req *structpb.Struct) (*timestamppb.Timestamp, error) {
	left, err := s.authority.Engine().Remaining(stringField(req, "match_id"))
	if err != nil {
		return nil, grpcError(err)
	}
	return timestamppb.New(time.Now().Add(left)), nil
}

// NewGRPCServer builds a server exposing the match service and the standard health service.
func NewGRPCServer(cfg config.GRPCConfig, logger *zap.Logger, srv MatchServiceServer) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []grpc.ServerOption{
		grpc.UnaryInterceptor(ChainUnaryInterceptors(
			RecoveryInterceptor(logger),
			LoggingInterceptor(logger),
		)),
	}
	if cfg.KeepaliveTime > 0 {
		opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    cfg.KeepaliveTime,
			Timeout: cfg.KeepaliveTimeout,
		}))
	}
	if cfg.MaxConcurrentStreams > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(uint32(cfg.MaxConcurrentStreams)))
	}

	grpcServer := grpc.NewServer(opts...)
	RegisterMatchServiceServer(grpcServer, srv)

	hs := health.NewServer()
	hs.SetServingStatus(MatchServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, hs)
	return grpcServer, hs
}

// grpcError maps domain errors onto status codes.
func grpcError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, game.ErrMatchNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, game.ErrMatchExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, ErrSeatDenied), errors.Is(err, replication.ErrIntentNotAllowed):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, pieces.ErrUnknownPiece),
		errors.Is(err, pieces.ErrInvalidRoster),
		errors.Is(err, game.ErrInvalidRoster):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func intField(s *structpb.Struct, key string, fallback int) int {
	v, ok := s.GetFields()[key]
	if !ok {
		return fallback
	}
	return int(v.GetNumberValue())
}

// toStruct renders v through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return out, nil
}
