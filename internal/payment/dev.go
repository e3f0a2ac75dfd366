package payment

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// DevProcessor accepts every payment. It is used when no Stripe key is configured.
type DevProcessor struct {
	mu      sync.Mutex
	intents map[string]Intent
}

func NewDevProcessor() *DevProcessor {
	return &DevProcessor{intents: make(map[string]Intent)}
}

func (p *DevProcessor) CreateIntent(_ context.Context, amount int64, currency string, _ map[string]string) (*Intent, error) {
	id := "pi_dev_" + uuid.NewString()
	intent := Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Amount:       amount,
		Currency:     currency,
	}

	p.mu.Lock()
	p.intents[id] = intent
	p.mu.Unlock()

	return &intent, nil
}

func (p *DevProcessor) Succeeded(_ context.Context, intentID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.intents[intentID]
	return ok, nil
}
