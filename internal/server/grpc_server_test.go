package server_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	reflectionpb "google.golang.org/grpc/reflection/grpc_reflection_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/venue-match/internal/auth"
	"github.com/oggyb/venue-match/internal/server"
)

type echoRequest struct {
	Text  string `json:"text"`
	Times int    `json:"times"`
}

type echoReply struct {
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

type echoServer interface {
	Echo(ctx context.Context, req *echoRequest) (*echoReply, error)
}

type echo struct{}

func (echo) Echo(ctx context.Context, req *echoRequest) (*echoReply, error) {
	if req.Text == "" {
		return nil, status.Error(codes.InvalidArgument, "text is required")
	}
	out := ""
	for i := 0; i < req.Times; i++ {
		out += req.Text
	}
	return &echoReply{Text: out, SentAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}, nil
}

const echoMethod = "/venuematch.testing.v1.EchoService/Echo"

var echoDesc = server.Described(grpc.ServiceDesc{
	ServiceName: "venuematch.testing.v1.EchoService",
	HandlerType: (*echoServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Echo", Handler: server.Unary(echoMethod, echoServer.Echo)},
	},
})

type echoRegistrar struct{}

func (echoRegistrar) Register(s *grpc.Server) { s.RegisterService(&echoDesc, echo{}) }

func dialEcho(t *testing.T, tokens *auth.TokenService) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := server.NewGRPCServer(tokens, zerolog.Nop(), echoRegistrar{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestReflectionServesStructSchema(t *testing.T) {
	conn := dialEcho(t, auth.NewTokenService("secret", time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := reflectionpb.NewServerReflectionClient(conn).ServerReflectionInfo(ctx)
	require.NoError(t, err)

	require.NoError(t, stream.Send(&reflectionpb.ServerReflectionRequest{
		MessageRequest: &reflectionpb.ServerReflectionRequest_ListServices{},
	}))
	resp, err := stream.Recv()
	require.NoError(t, err)
	var names []string
	for _, s := range resp.GetListServicesResponse().GetService() {
		names = append(names, s.GetName())
	}
	assert.Contains(t, names, "venuematch.testing.v1.EchoService")

	require.NoError(t, stream.Send(&reflectionpb.ServerReflectionRequest{
		MessageRequest: &reflectionpb.ServerReflectionRequest_FileContainingSymbol{
			FileContainingSymbol: "venuematch.testing.v1.EchoService",
		},
	}))
	resp, err = stream.Recv()
	require.NoError(t, err)
	require.Nil(t, resp.GetErrorResponse())

	var method *descriptorpb.MethodDescriptorProto
	for _, raw := range resp.GetFileDescriptorResponse().GetFileDescriptorProto() {
		fd := &descriptorpb.FileDescriptorProto{}
		require.NoError(t, proto.Unmarshal(raw, fd))
		for _, svc := range fd.GetService() {
			if svc.GetName() == "EchoService" {
				require.Len(t, svc.GetMethod(), 1)
				method = svc.GetMethod()[0]
				assert.Contains(t, fd.GetDependency(), "google/protobuf/struct.proto")
			}
		}
	}
	require.NotNil(t, method, "service descriptor not served")
	assert.Equal(t, "Echo", method.GetName())
	assert.Equal(t, ".google.protobuf.Struct", method.GetInputType())
	assert.Equal(t, ".google.protobuf.Struct", method.GetOutputType())
}

func TestUnaryBindsStructMessages(t *testing.T) {
	tokens := auth.NewTokenService("secret", time.Hour)
	conn := dialEcho(t, tokens)

	token, _, err := tokens.Issue("u1")
	require.NoError(t, err)
	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)

	in, err := server.ToStruct(&echoRequest{Text: "ab", Times: 3})
	require.NoError(t, err)
	out := new(structpb.Struct)
	require.NoError(t, conn.Invoke(ctx, echoMethod, in, out))

	var reply echoReply
	require.NoError(t, server.FromStruct(out, &reply))
	assert.Equal(t, "ababab", reply.Text)
	assert.True(t, reply.SentAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))

	empty, err := server.ToStruct(&echoRequest{})
	require.NoError(t, err)
	err = conn.Invoke(ctx, echoMethod, empty, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	wrongType, err := structpb.NewStruct(map[string]any{"times": "many"})
	require.NoError(t, err)
	err = conn.Invoke(ctx, echoMethod, wrongType, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestStructConversionOfNil(t *testing.T) {
	s, err := server.ToStruct(nil)
	require.NoError(t, err)
	assert.Empty(t, s.GetFields())

	var req echoRequest
	require.NoError(t, server.FromStruct(nil, &req))
	assert.Zero(t, req)
}
