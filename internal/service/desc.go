package service

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Services exchange google.protobuf.Struct messages, so the descriptors are
// declared here rather than generated.
const (
	TaskServiceName         = "tasktracker.v1.TaskService"
	NotificationServiceName = "tasktracker.v1.NotificationService"
	UserServiceName         = "tasktracker.v1.UserService"
)

// FullMethod returns the gRPC path of a method.
func FullMethod(service, method string) string {
	return "/" + service + "/" + method
}

type structHandler func(srv interface{}, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(service, name string, call structHandler) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv, ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(service, name),
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv, ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// TaskServer is the server API of tasktracker.v1.TaskService.
type TaskServer interface {
	CreateTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTasks(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EditTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApplyUpdate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ChangeStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Stats(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var taskServiceDesc = grpc.ServiceDesc{
	ServiceName: TaskServiceName,
	HandlerType: (*TaskServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(TaskServiceName, "CreateTask", func(srv interface{}, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(TaskServer).CreateTask(ctx, req)
		}),
		unaryMethod(TaskServiceName, "GetTask", func(srv interface{}, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(TaskServer).GetTask(ctx, req)
		}),
		unaryMethod(TaskServiceName, "ListTasks", func(srv interface{}, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(TaskServer).ListTasks(ctx, req)
		}),
		unaryMethod(TaskServiceName, "EditTask", func(srv interface{}, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(TaskServer).EditTask(ctx, req)
		}),
		unaryMethod(TaskServiceName, "ApplyUpdate", func(srv interface{}, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(TaskServer).ApplyUpdate(ctx, req)
		}),
		unaryMethod(TaskServiceName, "ChangeStatus", func(srv interface{}, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(TaskServer).ChangeStatus(ctx, req)
		}),
		unaryMethod(TaskServiceName, "DeleteTask", func(srv interface{}, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(TaskServer).DeleteTask(ctx, req)
		}),
		unaryMethod(TaskServiceName, "Stats", func(srv interface{}, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(TaskServer).Stats(ctx, req)
		}),
	},
	Streams: []grpc.StreamDesc{},
}

// NotificationServer is the server API of tasktracker.v1.NotificationService.
type NotificationServer interface {
	ListNotifications(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UnreadCount(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var notificationServiceDesc = grpc.ServiceDesc{
	ServiceName: NotificationServiceName,
	HandlerType: (*NotificationServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(NotificationServiceName, "ListNotifications", func(srv interface{}, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(NotificationServer).ListNotifications(ctx, req)
		}),
		unaryMethod(NotificationServiceName, "UnreadCount", func(srv interface{}, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(NotificationServer).UnreadCount(ctx, req)
		}),
	},
	Streams: []grpc.StreamDesc{},
}

// UserServer is the server API of tasktracker.v1.UserService.
type UserServer interface {
	ListUsers(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateUser(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EditUser(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteUser(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var userServiceDesc = grpc.ServiceDesc{
	ServiceName: UserServiceName,
	HandlerType: (*UserServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(UserServiceName, "ListUsers", func(srv interface{}, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(UserServer).ListUsers(ctx, req)
		}),
		unaryMethod(UserServiceName, "CreateUser", func(srv interface{}, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(UserServer).CreateUser(ctx, req)
		}),
		unaryMethod(UserServiceName, "EditUser", func(srv interface{}, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(UserServer).EditUser(ctx, req)
		}),
		unaryMethod(UserServiceName, "DeleteUser", func(srv interface{}, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(UserServer).DeleteUser(ctx, req)
		}),
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterTaskServer(s grpc.ServiceRegistrar, srv TaskServer) {
	s.RegisterService(&taskServiceDesc, srv)
}

func RegisterNotificationServer(s grpc.ServiceRegistrar, srv NotificationServer) {
	s.RegisterService(&notificationServiceDesc, srv)
}

func RegisterUserServer(s grpc.ServiceRegistrar, srv UserServer) {
	s.RegisterService(&userServiceDesc, srv)
}
