package server

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/caroarena/caro-server-go/internal/config"
	"github.com/caroarena/caro-server-go/internal/game"
	"github.com/caroarena/caro-server-go/internal/game/board"
	"github.com/caroarena/caro-server-go/internal/game/heuristic"
	"github.com/caroarena/caro-server-go/internal/game/pieces"
	"github.com/caroarena/caro-server-go/internal/game/timer"
	"github.com/caroarena/caro-server-go/internal/replication"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func newTestAuthority(t *testing.T) *replication.Authority {
	t.Helper()
	engine := game.NewEngine(zap.NewNop(), pieces.Default(), game.EngineConfig{
		BoardSize: 15,
		TurnLimit: time.Minute,
		Clock:     timer.NewManualClock(time.Unix(1_700_000_000, 0)),
	})
	return replication.NewAuthority(zap.NewNop(), engine)
}

func TestSeatTokens(t *testing.T) {
	seats := NewSeatTokens(bcrypt.MinCost)
	token, err := seats.Issue("m1", board.Player1)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	assert.NoError(t, seats.Verify("m1", board.Player1, token))
	assert.ErrorIs(t, seats.Verify("m1", board.Player2, token), ErrSeatDenied)
	assert.ErrorIs(t, seats.Verify("m1", board.Player1, "guess"), ErrSeatDenied)
	assert.ErrorIs(t, seats.Verify("m1", board.Player1, ""), ErrSeatDenied)
	assert.ErrorIs(t, seats.Verify("m2", board.Player1, token), ErrSeatDenied)

	_, err = seats.Issue("m1", board.NoPlayer)
	assert.Error(t, err)

	seats.Forget("m1")
	assert.ErrorIs(t, seats.Verify("m1", board.Player1, token), ErrSeatDenied)
}

func TestChainUnaryInterceptorsOrder(t *testing.T) {
	var calls []string
	tag := func(name string) grpc.UnaryServerInterceptor {
		return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			calls = append(calls, name)
			return handler(ctx, req)
		}
	}
	chain := ChainUnaryInterceptors(tag("outer"), tag("inner"))
	resp, err := chain(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/x/Y"},
		func(ctx context.Context, req any) (any, error) {
			calls = append(calls, "handler")
			return req, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "req", resp)
	assert.Equal(t, []string{"outer", "inner", "handler"}, calls)
}

func TestRecoveryInterceptor(t *testing.T) {
	intercept := RecoveryInterceptor(zaptest.NewLogger(t))
	_, err := intercept(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x/Panic"},
		func(ctx context.Context, req any) (any, error) { panic("boom") })
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestGRPCErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{game.ErrMatchNotFound, codes.NotFound},
		{game.ErrMatchExists, codes.AlreadyExists},
		{ErrSeatDenied, codes.PermissionDenied},
		{replication.ErrIntentNotAllowed, codes.PermissionDenied},
		{pieces.ErrUnknownPiece, codes.InvalidArgument},
		{errors.New("disk on fire"), codes.Internal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, status.Code(grpcError(tt.err)), tt.err.Error())
	}
	assert.NoError(t, grpcError(nil))
}

type grpcFixture struct {
	client *MatchServiceClient
	health healthpb.HealthClient
}

func startGRPC(t *testing.T) grpcFixture {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	svc := NewMatchServer(zap.NewNop(), newTestAuthority(t), NewSeatTokens(bcrypt.MinCost), heuristic.Normal)
	srv, _ := NewGRPCServer(config.GRPCConfig{MaxConcurrentStreams: 10}, zap.NewNop(), svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return grpcFixture{client: NewMatchServiceClient(conn), health: healthpb.NewHealthClient(conn)}
}

func mustStruct(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return s
}

func createRequest(t *testing.T, id string, p2Bot bool) *structpb.Struct {
	return mustStruct(t, map[string]any{
		"match_id": id,
		"first":    1,
		"seats": []any{
			map[string]any{"roster": []any{17, 2, 4}},
			map[string]any{"roster": []any{17, 8, 9}, "bot": p2Bot, "difficulty": "easy"},
		},
	})
}

func TestMatchServiceFlow(t *testing.T) {
	f := startGRPC(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	created, err := f.client.CreateMatch(ctx, createRequest(t, "g1", false))
	require.NoError(t, err)
	assert.Equal(t, "g1", created.GetFields()["match_id"].GetStringValue())
	tokens := created.GetFields()["tokens"].GetStructValue().GetFields()
	require.Len(t, tokens, 2)
	p1Token := tokens["1"].GetStringValue()

	_, err = f.client.CreateMatch(ctx, createRequest(t, "g1", false))
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	selectReq := mustStruct(t, map[string]any{"match_id": "g1", "player": 1, "kind": "select", "slot": 0})
	_, err = f.client.SubmitIntent(ctx, "wrong", selectReq)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
	_, err = f.client.SubmitIntent(ctx, tokens["2"].GetStringValue(), selectReq)
	assert.Equal(t, codes.PermissionDenied, status.Code(err), "seat 2's token cannot act for seat 1")

	resp, err := f.client.SubmitIntent(ctx, p1Token, selectReq)
	require.NoError(t, err)
	assert.True(t, resp.GetFields()["accepted"].GetBoolValue())

	offBoard := mustStruct(t, map[string]any{"match_id": "g1", "player": 1, "kind": "place", "row": 20, "col": 0})
	resp, err = f.client.SubmitIntent(ctx, p1Token, offBoard)
	require.NoError(t, err)
	assert.False(t, resp.GetFields()["accepted"].GetBoolValue())
	assert.Equal(t, string(game.ReasonOutOfBounds), resp.GetFields()["reason"].GetStringValue())

	pass := mustStruct(t, map[string]any{"match_id": "g1", "player": 1, "kind": "pass"})
	_, err = f.client.SubmitIntent(ctx, p1Token, pass)
	assert.Equal(t, codes.PermissionDenied, status.Code(err), "only automated seats pass")

	place := mustStruct(t, map[string]any{"match_id": "g1", "player": 1, "kind": "place", "row": 7, "col": 7})
	resp, err = f.client.SubmitIntent(ctx, p1Token, place)
	require.NoError(t, err)
	assert.True(t, resp.GetFields()["accepted"].GetBoolValue())

	snap, err := f.client.GetSnapshot(ctx, mustStruct(t, map[string]any{"match_id": "g1"}))
	require.NoError(t, err)
	assert.Equal(t, float64(board.Player2), snap.GetFields()["active"].GetNumberValue())
	assert.Len(t, snap.GetFields()["cells"].GetListValue().GetValues(), 1)

	deadline, err := f.client.TurnDeadline(ctx, mustStruct(t, map[string]any{"match_id": "g1"}))
	require.NoError(t, err)
	assert.True(t, deadline.AsTime().After(time.Now()))

	_, err = f.client.GetSnapshot(ctx, mustStruct(t, map[string]any{"match_id": "nope"}))
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestMatchServiceValidation(t *testing.T) {
	f := startGRPC(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := f.client.CreateMatch(ctx, mustStruct(t, map[string]any{"seats": []any{}}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	bad := createRequest(t, "g2", false)
	bad.GetFields()["seats"].GetListValue().GetValues()[0].GetStructValue().GetFields()["roster"] =
		structpb.NewListValue(&structpb.ListValue{Values: []*structpb.Value{
			structpb.NewNumberValue(17), structpb.NewNumberValue(2), structpb.NewNumberValue(99),
		}})
	_, err = f.client.CreateMatch(ctx, bad)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	created, err := f.client.CreateMatch(ctx, createRequest(t, "g3", true))
	require.NoError(t, err)
	assert.Len(t, created.GetFields()["tokens"].GetStructValue().GetFields(), 1, "bots get no token")

	_, err = f.client.SubmitIntent(ctx, "", mustStruct(t, map[string]any{"match_id": "g3", "player": 1, "kind": "dance"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestHealthService(t *testing.T) {
	f := startGRPC(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := f.health.Check(ctx, &healthpb.HealthCheckRequest{Service: MatchServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
