package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/crudflow/internal/runtime/jsoncodec"
	metadatapkg "github.com/drblury/crudflow/internal/runtime/metadata"
	"github.com/drblury/crudflow/internal/runtime/rpc"
)

func decodeReply(t *testing.T, msg *message.Message) map[string]any {
	t.Helper()
	reply, err := jsoncodec.UnmarshalDocument(msg.Payload)
	require.NoError(t, err)
	return reply
}

func TestBusHandlerRepliesWithResult(t *testing.T) {
	cfg := newTestConfig()
	cfg.BusRPCEnabled = true
	svc, pub := newTestService(t, cfg, ServiceDependencies{})

	var gotTransport string
	require.NoError(t, svc.Register(context.Background(), "app.sum", func(ctx context.Context, call rpc.Call) (any, error) {
		gotTransport = callTransport(ctx)
		var total int64
		for _, arg := range call.Args {
			total += arg.(int64)
		}
		return total, nil
	}))
	assert.Equal(t, "app.sum", svc.Procedures()[0].BusTopic)

	msg := message.NewMessage("m1", []byte(`{"args":[1,2,3]}`))
	msg.Metadata.Set(metadatapkg.KeyCorrelationID, "corr-1")
	require.NoError(t, svc.busHandler("app.sum")(msg))

	replies := pub.Published(ReplyTopic("app.sum"))
	require.Len(t, replies, 1)
	assert.Equal(t, "corr-1", replies[0].Metadata.Get(metadatapkg.KeyCorrelationID))
	assert.Equal(t, "app.sum", replies[0].Metadata.Get(metadatapkg.KeyProcedure))
	assert.Equal(t, int64(6), decodeReply(t, replies[0])["result"])
	assert.Equal(t, TransportBus, gotTransport)
}

func TestBusHandlerHonoursReplyTo(t *testing.T) {
	cfg := newTestConfig()
	cfg.BusRPCEnabled = true
	svc, pub := newTestService(t, cfg, ServiceDependencies{})
	require.NoError(t, svc.Register(context.Background(), "app.fail", func(context.Context, rpc.Call) (any, error) {
		return nil, errors.New("nope")
	}))

	msg := message.NewMessage("m2", nil)
	msg.Metadata.Set(metadatapkg.KeyReplyTo, "client.inbox")
	require.NoError(t, svc.busHandler("app.fail")(msg))

	replies := pub.Published("client.inbox")
	require.Len(t, replies, 1)
	assert.Equal(t, "m2", replies[0].Metadata.Get(metadatapkg.KeyCorrelationID), "message uuid is the fallback correlation id")
	reply := decodeReply(t, replies[0])
	assert.Nil(t, reply["result"])
	assert.Equal(t, map[string]any{"code": int64(rpc.CodeProcedureFailure), "message": "nope"}, reply["error"])
}

func TestBusHandlerRejectsMalformedPayload(t *testing.T) {
	cfg := newTestConfig()
	cfg.BusRPCEnabled = true
	svc, pub := newTestService(t, cfg, ServiceDependencies{})
	require.NoError(t, svc.Register(context.Background(), "app.echo", func(context.Context, rpc.Call) (any, error) {
		return nil, nil
	}))

	for _, payload := range []string{`not json`, `[1]`, `{"args":{}}`, `{"kwargs":[1]}`} {
		err := svc.busHandler("app.echo")(message.NewMessage("m", []byte(payload)))
		assert.True(t, isUnprocessable(err), payload)
	}
	assert.Empty(t, pub.Published(ReplyTopic("app.echo")))
}

func TestBusHandlerReplyPublishFailure(t *testing.T) {
	cfg := newTestConfig()
	cfg.BusRPCEnabled = true
	svc, pub := newTestService(t, cfg, ServiceDependencies{})
	require.NoError(t, svc.Register(context.Background(), "app.echo", func(context.Context, rpc.Call) (any, error) {
		return "x", nil
	}))
	pub.Err = errors.New("broker down")

	err := svc.busHandler("app.echo")(message.NewMessage("m", []byte(`{}`)))
	require.ErrorIs(t, err, pub.Err)
	assert.False(t, isUnprocessable(err))
}

func TestBusRPCOverGoChannel(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	cfg := newTestConfig()
	cfg.BusRPCEnabled = true
	svc, _ := newTestService(t, cfg, ServiceDependencies{TransportBuilder: goChannelTransport(pubSub)})

	require.NoError(t, svc.Register(context.Background(), "app.greet", func(_ context.Context, call rpc.Call) (any, error) {
		return "hello " + call.Kwarg("name").(string), nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	replies, err := pubSub.Subscribe(ctx, ReplyTopic("app.greet"))
	require.NoError(t, err)

	go func() { _ = svc.router.Run(ctx) }()
	<-svc.router.Running()

	req := message.NewMessage(watermill.NewUUID(), []byte(`{"kwargs":{"name":"ada"}}`))
	req.Metadata = metadatapkg.Request("app.greet", "corr-42", "")
	require.NoError(t, pubSub.Publish("app.greet", req))

	select {
	case reply := <-replies:
		reply.Ack()
		assert.Equal(t, "corr-42", reply.Metadata.Get(metadatapkg.KeyCorrelationID))
		assert.Equal(t, "hello ada", decodeReply(t, reply)["result"])
	case <-time.After(5 * time.Second):
		t.Fatal("no bus RPC reply")
	}
}
