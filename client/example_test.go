package client_test

import (
	"context"
	"fmt"
	"net"
	"time"

	"idrpc/client"
	"idrpc/registry"
	"idrpc/server"
	"idrpc/service"
)

type Args struct {
	A, B int
}

func Example() {
	b := registry.NewBuilder()
	_, err := b.Register(1024, "Arith",
		service.NewMethod(1, "Multiply", service.Func[Args, int](func(ctx context.Context, a Args) (int, error) {
			return a.A * a.B, nil
		})),
		service.NewMethod(2, "Add", service.Func[Args, int](func(ctx context.Context, a Args) (int, error) {
			return a.A + a.B, nil
		})),
	)
	if err != nil {
		panic(err)
	}

	svr := server.NewServer(b.Finalize())
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(err)
	}
	go svr.Serve(lis)
	defer svr.Shutdown(time.Second)

	ctx := context.Background()
	cli, err := client.Dial(ctx, lis.Addr().String())
	if err != nil {
		panic(err)
	}
	defer cli.Stop()

	multiply := client.NewStub[Args, int](1024, 1)
	product, err := multiply.Call(ctx, cli, Args{A: 9, B: 9})
	if err != nil {
		panic(err)
	}
	sum, err := client.Invoke[Args, int](ctx, cli, 1024, 2, Args{A: 9, B: 9})
	if err != nil {
		panic(err)
	}
	fmt.Println(product)
	fmt.Println(sum)
	// Output:
	// 81
	// 18
}
