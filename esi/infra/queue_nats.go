package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"killboard-gateway/esi/domain"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Headers gravados em cada mensagem de job.
const (
	HeaderJobPriority    = "Job-Priority"
	HeaderJobMaxAttempts = "Job-Max-Attempts"
)

// JobPublisher é o subconjunto de jetstream.JetStream usado para publicar.
type JobPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NatsJobQueue publica jobs num stream JetStream, um subject por tipo
// (<prefix>.<tipo>). O ID do job vai como Nats-Msg-Id, então republicar o
// mesmo job dentro da janela de duplicatas do stream não gera entrega dupla.
type NatsJobQueue struct {
	pub    JobPublisher
	prefix string
}

type NatsQueueOption func(*NatsJobQueue)

func WithSubjectPrefix(prefix string) NatsQueueOption {
	return func(q *NatsJobQueue) { q.prefix = strings.Trim(prefix, ".") }
}

func NewNatsJobQueue(pub JobPublisher, opts ...NatsQueueOption) *NatsJobQueue {
	q := &NatsJobQueue{pub: pub, prefix: "killboard.jobs"}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *NatsJobQueue) Subject(t domain.JobType) string {
	return q.prefix + "." + string(t)
}

// EnsureStream cria (ou atualiza) o stream que captura todos os subjects de job.
func (q *NatsJobQueue) EnsureStream(ctx context.Context, js jetstream.JetStream, name string) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     name,
		Subjects: []string{q.prefix + ".>"},
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", name, err)
	}
	return nil
}

func (q *NatsJobQueue) Enqueue(ctx context.Context, job domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	msg := nats.NewMsg(q.Subject(job.Type))
	msg.Data = data
	msg.Header.Set(HeaderJobPriority, strconv.Itoa(job.Priority))
	msg.Header.Set(HeaderJobMaxAttempts, strconv.Itoa(job.MaxAttempts))

	if _, err := q.pub.PublishMsg(ctx, msg, jetstream.WithMsgID(job.ID)); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}
