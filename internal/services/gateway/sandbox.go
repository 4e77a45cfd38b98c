package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"raffle-system/internal/status"
	"raffle-system/utils"
)

// Sandbox is an in-process gateway for development and tests. Behavior is
// driven by the payment credential: a credential starting with "DECLINE" is
// declined, one starting with "ERROR" fails with a transport-style error,
// anything else is approved.
type Sandbox struct {
	mu     sync.Mutex
	ByUUID map[string]*status.Authorization
}

func NewSandbox() *Sandbox {
	return &Sandbox{
		ByUUID: make(map[string]*status.Authorization),
	}
}

func (s *Sandbox) GetProvider() Provider {
	return ProviderSandbox
}

func (s *Sandbox) Authorize(_ context.Context, form *status.AuthorizationForm) (*status.Authorization, error) {
	if strings.HasPrefix(form.Credential, "ERROR") {
		return nil, errors.New("sandbox: simulated gateway failure")
	}

	auth := &status.Authorization{
		Amount:   form.Amount,
		Currency: form.Currency,
	}

	if strings.HasPrefix(form.Credential, "DECLINE") {
		auth.Message = "declined by sandbox rule"
	} else {
		code, err := utils.GenerateCode(8)
		if err != nil {
			return nil, err
		}
		auth.Approved = true
		auth.RefID = fmt.Sprintf("SB-%s", code)
	}

	s.mu.Lock()
	s.ByUUID[form.UUID] = auth
	s.mu.Unlock()

	return auth, nil
}

func (s *Sandbox) CheckAuthorization(_ context.Context, uuid string) (*status.Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auth, ok := s.ByUUID[uuid]
	if !ok {
		return nil, fmt.Errorf("sandbox: unknown authorization %q", uuid)
	}
	return auth, nil
}

func (s *Sandbox) Close(_ context.Context) error {
	return nil
}
