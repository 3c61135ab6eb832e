package registry

import (
	"math/rand/v2"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/abdala981br/automacao/internal/domain"
)

// Companies, Roles and the fixed strings below feed the simulated robot.
var (
	Companies = []string{"Nubank", "iFood", "Mercado Livre", "Stone", "PicPay"}
	Roles     = []string{
		"Desenvolvedor Frontend",
		"Engenheiro de Software",
		"Desenvolvedor Fullstack",
		"Tech Lead",
		"Desenvolvedor Backend",
	}
)

const (
	NeedsInputPrompt = "Por que você quer trabalhar nesta empresa?"
	TimeoutNote      = "Erro: Timeout ao carregar formulário"
)

// Generator 生成模拟投递记录。随机源与时钟可注入，便于测试复现。
type Generator struct {
	mu    sync.Mutex
	rng   *rand.Rand
	clock clockwork.Clock
}

// NewGenerator builds a generator. A nil source uses a randomly seeded PCG,
// a nil clock uses the real clock.
func NewGenerator(src rand.Source, clock clockwork.Clock) *Generator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Generator{rng: rand.New(src), clock: clock}
}

// Next draws one synthetic application. The id and creation timestamp are
// left for the store to assign.
func (g *Generator) Next() domain.JobApplication {
	g.mu.Lock()
	company := Companies[g.rng.IntN(len(Companies))]
	role := Roles[g.rng.IntN(len(Roles))]
	platform := domain.Platforms[g.rng.IntN(len(domain.Platforms))]
	r := g.rng.Float64()
	g.mu.Unlock()

	return domain.JobApplication{
		Company:  company,
		Role:     role,
		Platform: platform,
		Date:     g.clock.Now().UTC(),
		Detail:   DetailFor(r),
	}
}

// DetailFor maps a draw in [0,1) to a status:
// [0,0.2) needs_input, [0.2,0.3) failed, [0.3,0.5) pending_bot, else applied.
func DetailFor(r float64) domain.StatusDetail {
	switch {
	case r < 0.20:
		return domain.NeedsInput{Question: NeedsInputPrompt}
	case r < 0.30:
		return domain.Failed{Reason: TimeoutNote}
	case r < 0.50:
		return domain.PendingBot{}
	default:
		return domain.Applied{}
	}
}
