package server

import (
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"
)

const structTypeName = ".google.protobuf.Struct"

// Described registers a proto file declaring desc's service, every method
// taking and returning google.protobuf.Struct, and points desc.Metadata at
// it so reflection can serve the schema. Call it once per service from a
// package-level var; it panics on a duplicate or invalid description.
func Described(desc grpc.ServiceDesc) grpc.ServiceDesc {
	i := strings.LastIndex(desc.ServiceName, ".")
	if i <= 0 {
		panic(fmt.Sprintf("grpc service %q has no package", desc.ServiceName))
	}
	pkg, name := desc.ServiceName[:i], desc.ServiceName[i+1:]
	file := strings.ReplaceAll(pkg, ".", "/") + "/" + strings.ToLower(name) + ".proto"

	svc := &descriptorpb.ServiceDescriptorProto{Name: proto.String(name)}
	for _, m := range desc.Methods {
		svc.Method = append(svc.Method, &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(m.MethodName),
			InputType:  proto.String(structTypeName),
			OutputType: proto.String(structTypeName),
		})
	}
	fdp := &descriptorpb.FileDescriptorProto{
		Name:       proto.String(file),
		Package:    proto.String(pkg),
		Syntax:     proto.String("proto3"),
		Dependency: []string{(&structpb.Struct{}).ProtoReflect().Descriptor().ParentFile().Path()},
		Service:    []*descriptorpb.ServiceDescriptorProto{svc},
	}

	fd, err := protodesc.NewFile(fdp, protoregistry.GlobalFiles)
	if err != nil {
		panic(fmt.Sprintf("describe %s: %v", desc.ServiceName, err))
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic(fmt.Sprintf("register %s: %v", desc.ServiceName, err))
	}
	desc.Metadata = file
	return desc
}

// ToStruct converts a JSON-tagged Go value into the wire message.
func ToStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if string(b) == "null" {
		return out, nil
	}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, err
	}
	return out, nil
}

// FromStruct binds a wire message into a JSON-tagged Go value.
func FromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	b, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
