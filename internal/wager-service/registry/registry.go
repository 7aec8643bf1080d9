package registry

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/radieske/contest-wager-ledger/internal/wager-service/domain"
)

// Registry mantém a lista somente-leitura de participantes do contest.
// É montada uma vez na inicialização e não muda durante o contest.
type Registry struct {
	ordered []domain.Participant
	byID    map[int]domain.Participant
}

// DefaultSeed é usado quando nenhum arquivo de participantes é configurado
var DefaultSeed = []domain.Participant{
	{ID: 1, Name: "Null Pointer Crew"},
	{ID: 2, Name: "Segfault Syndicate"},
	{ID: 3, Name: "Race Condition Raiders"},
	{ID: 4, Name: "Heap Overflow Heroes"},
}

// New valida e indexa os participantes mantendo a ordem recebida
func New(participants []domain.Participant) (*Registry, error) {
	r := &Registry{
		ordered: make([]domain.Participant, 0, len(participants)),
		byID:    make(map[int]domain.Participant, len(participants)),
	}
	for _, p := range participants {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return nil, fmt.Errorf("participant %d: empty name", p.ID)
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("participant %d: duplicate id", p.ID)
		}
		r.byID[p.ID] = p
		r.ordered = append(r.ordered, p)
	}
	return r, nil
}

type seedFile struct {
	Participants []domain.Participant `yaml:"participants"`
}

// Load lê o arquivo YAML de participantes; path vazio usa DefaultSeed
//
//	participants:
//	  - id: 1
//	    name: Null Pointer Crew
func Load(path string) (*Registry, error) {
	if path == "" {
		return New(DefaultSeed)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read participants: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse participants: %w", err)
	}
	if len(f.Participants) == 0 {
		return nil, fmt.Errorf("parse participants: %s has no participants", path)
	}
	return New(f.Participants)
}

// List retorna uma cópia da lista na ordem do seed
func (r *Registry) List() []domain.Participant {
	out := make([]domain.Participant, len(r.ordered))
	copy(out, r.ordered)
	return out
}

func (r *Registry) Get(id int) (domain.Participant, error) {
	p, ok := r.byID[id]
	if !ok {
		return domain.Participant{}, fmt.Errorf("%w: %d", domain.ErrUnknownParticipant, id)
	}
	return p, nil
}
