package connection

import (
	"context"

	"google.golang.org/grpc"

	"github.com/oggyb/venue-match/internal/app"
	"github.com/oggyb/venue-match/internal/auth"
	svcErr "github.com/oggyb/venue-match/internal/errors"
	"github.com/oggyb/venue-match/internal/server"
)

const serviceName = "venuematch.connection.v1.ConnectionService"

type ListConnectionsRequest struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type UnmatchRequest struct {
	ConnectionID string `json:"connectionId"`
}

type BlockRequest struct {
	UserID string `json:"userId"`
}

type ReportRequest struct {
	UserID string `json:"userId"`
	Reason string `json:"reason"`
}

type Empty struct{}

// ConnectionServer is the gRPC surface of the connection graph. The caller
// is always the authenticated user.
type ConnectionServer interface {
	ListConnections(ctx context.Context, req *ListConnectionsRequest) (*Page, error)
	Unmatch(ctx context.Context, req *UnmatchRequest) (*Empty, error)
	Block(ctx context.Context, req *BlockRequest) (*Empty, error)
	Report(ctx context.Context, req *ReportRequest) (*Empty, error)
}

var serviceDesc = server.Described(grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ConnectionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListConnections", Handler: server.Unary("/"+serviceName+"/ListConnections", ConnectionServer.ListConnections)},
		{MethodName: "Unmatch", Handler: server.Unary("/"+serviceName+"/Unmatch", ConnectionServer.Unmatch)},
		{MethodName: "Block", Handler: server.Unary("/"+serviceName+"/Block", ConnectionServer.Block)},
		{MethodName: "Report", Handler: server.Unary("/"+serviceName+"/Report", ConnectionServer.Report)},
	},
})

// grpcServer adapts Service to ConnectionServer.
type grpcServer struct {
	svc *Service
}

func (g *grpcServer) ListConnections(ctx context.Context, req *ListConnectionsRequest) (*Page, error) {
	page, err := g.svc.ListConnections(ctx, auth.UserIDFrom(ctx), req.Page, req.Limit)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return page, nil
}

func (g *grpcServer) Unmatch(ctx context.Context, req *UnmatchRequest) (*Empty, error) {
	if err := g.svc.Unmatch(ctx, auth.UserIDFrom(ctx), req.ConnectionID); err != nil {
		return nil, svcErr.Map(err)
	}
	return &Empty{}, nil
}

func (g *grpcServer) Block(ctx context.Context, req *BlockRequest) (*Empty, error) {
	if err := g.svc.Block(ctx, auth.UserIDFrom(ctx), req.UserID); err != nil {
		return nil, svcErr.Map(err)
	}
	return &Empty{}, nil
}

func (g *grpcServer) Report(ctx context.Context, req *ReportRequest) (*Empty, error) {
	if err := g.svc.Report(ctx, auth.UserIDFrom(ctx), req.UserID, req.Reason); err != nil {
		return nil, svcErr.Map(err)
	}
	return &Empty{}, nil
}

// Registrar ties the Connection service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the Connection service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the Connection service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	s.RegisterService(&serviceDesc, &grpcServer{svc: NewConnectionService(r.appCtx)})
}
