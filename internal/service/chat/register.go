package chat

import (
	"context"

	"google.golang.org/grpc"

	"github.com/oggyb/venue-match/internal/app"
	"github.com/oggyb/venue-match/internal/auth"
	svcErr "github.com/oggyb/venue-match/internal/errors"
	"github.com/oggyb/venue-match/internal/moderation"
	"github.com/oggyb/venue-match/internal/server"
)

const serviceName = "venuematch.chat.v1.ChatService"

type ListMessagesRequest struct {
	ConnectionID string `json:"connectionId"`
	Cursor       string `json:"cursor,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

type ListGroupMessagesRequest struct {
	VenueID string `json:"venueId"`
	Cursor  string `json:"cursor,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type ListMessagesResponse = HistoryPage[MessageView]

type ListGroupMessagesResponse = HistoryPage[GroupMessageView]

// ChatServer is the gRPC surface for chat history. Live delivery happens over
// the websocket.
type ChatServer interface {
	ListMessages(ctx context.Context, req *ListMessagesRequest) (*ListMessagesResponse, error)
	ListGroupMessages(ctx context.Context, req *ListGroupMessagesRequest) (*ListGroupMessagesResponse, error)
}

var serviceDesc = server.Described(grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ChatServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListMessages", Handler: server.Unary("/"+serviceName+"/ListMessages", ChatServer.ListMessages)},
		{MethodName: "ListGroupMessages", Handler: server.Unary("/"+serviceName+"/ListGroupMessages", ChatServer.ListGroupMessages)},
	},
})

type grpcServer struct {
	svc *Service
}

func (g *grpcServer) ListMessages(ctx context.Context, req *ListMessagesRequest) (*ListMessagesResponse, error) {
	page, err := g.svc.ListMessages(ctx, auth.UserIDFrom(ctx), req.ConnectionID, req.Cursor, req.Limit)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return page, nil
}

func (g *grpcServer) ListGroupMessages(ctx context.Context, req *ListGroupMessagesRequest) (*ListGroupMessagesResponse, error) {
	page, err := g.svc.ListGroupMessages(ctx, auth.UserIDFrom(ctx), req.VenueID, req.Cursor, req.Limit)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return page, nil
}

// Registrar ties the Chat service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the Chat service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the Chat service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	filter := moderation.NewFilter(moderation.DefaultWords...)
	s.RegisterService(&serviceDesc, &grpcServer{svc: NewChatService(r.appCtx, filter)})
}
