package mq

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/aoli-al/havoc-mutation-eval/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type RabbitMQ interface {
	GetChannel() (*amqp.Channel, error)
	Publish(ctx context.Context, queue string, body []byte) error
}

type rabbitMQImpl struct {
	logger      *zap.Logger
	rabbitmqUrl string
	poolSize    int
	context     context.Context
	connections []*MQConnection
	mu          sync.Mutex
}

type MQConnection struct {
	conn      *amqp.Connection
	closeChan chan *amqp.Error
	logger    *zap.Logger

	closed bool
	mu     sync.Mutex
}

type RabbitMQParams struct {
	fx.In

	Config    *config.AppConfig
	Logger    *zap.Logger
	Lifecycle fx.Lifecycle
}

// NewRabbitMQ keeps a small pool of broker connections, filled on start and
// refilled on demand. It returns nil when RABBITMQ_URL is not set.
func NewRabbitMQ(p RabbitMQParams) RabbitMQ {
	if !p.Config.RabbitMQEnabled() {
		return nil
	}
	mqCtx, cancel := context.WithCancel(context.Background())

	svc := &rabbitMQImpl{
		logger:      p.Logger,
		rabbitmqUrl: p.Config.RabbitMQURL,
		poolSize:    max(1, p.Config.RunnerConfig.MQPoolSize),
		context:     mqCtx,
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			svc.logger.Debug("initializing rabbitmq connection pool", zap.Int("pool_size", svc.poolSize))
			for range svc.poolSize {
				mConn, err := svc.newMQConnection()
				if err != nil {
					return fmt.Errorf("failed to connect to rabbitmq: %w", err)
				}
				svc.mu.Lock()
				svc.connections = append(svc.connections, mConn)
				svc.mu.Unlock()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
	return svc
}

func (r *rabbitMQImpl) getActiveConnection() (*MQConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := r.connections[:0]
	for _, c := range r.connections {
		c.mu.Lock()
		if !c.closed {
			active = append(active, c)
		}
		c.mu.Unlock()
	}
	r.connections = active

	for len(r.connections) < r.poolSize {
		mConn, err := r.newMQConnection()
		if err != nil {
			r.logger.Warn("failed to refill rabbitmq pool", zap.Error(err))
			break
		}
		r.connections = append(r.connections, mConn)
	}

	if len(r.connections) == 0 {
		return nil, errors.New("no active rabbitmq connections")
	}
	return r.connections[rand.Intn(len(r.connections))], nil
}

func (r *rabbitMQImpl) newMQConnection() (*MQConnection, error) {
	conn, err := amqp.Dial(r.rabbitmqUrl)
	if err != nil {
		return nil, err
	}

	mConn := &MQConnection{
		conn:      conn,
		closeChan: make(chan *amqp.Error, 1),
		logger:    r.logger,
	}
	go mConn.monitor(r.context)
	return mConn, nil
}

// monitor marks the connection closed when the broker drops it. Blocking.
func (c *MQConnection) monitor(ctx context.Context) {
	c.conn.NotifyClose(c.closeChan)

	select {
	case err := <-c.closeChan:
		c.logger.Error("rabbitmq connection closed", zap.Error(err))
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
	case <-ctx.Done():
	}

	c.conn.Close()
}

func (r *rabbitMQImpl) GetChannel() (*amqp.Channel, error) {
	conn, err := r.getActiveConnection()
	if err != nil {
		return nil, err
	}
	ch, err := conn.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	return ch, nil
}

// Publish declares queue as durable and sends body as a persistent message.
func (r *rabbitMQImpl) Publish(ctx context.Context, queue string, body []byte) error {
	ch, err := r.GetChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	q, err := DeclareQueue(ch, queue)
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx,
		"",     // exchange
		q.Name, // routing key
		false,  // mandatory
		false,  // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// DeclareQueue declares a durable queue; a no-op when it already exists.
func DeclareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return q, fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	return q, nil
}
