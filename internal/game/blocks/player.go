package blocks

// Player health and scoring tuning.
const (
	StartingHealth = 100
	pointsPerCell  = 10
	damagePerLine  = 20
	reviveDelay    = 5.0
)

// Player carries one side's score and survival state. A player whose
// health reaches zero is knocked down for reviveDelay seconds, during
// which their board is frozen, then revives at full health.
type Player struct {
	Role       string
	Score      int
	Health     int
	ReviveTime float64
}

func NewPlayer(role string) *Player {
	return &Player{Role: role, Health: StartingHealth}
}

// Down reports whether the player is currently knocked down.
func (p *Player) Down() bool {
	return p.ReviveTime > 0
}

// ProcessClears scores the given cleared rows and, for multi-row clears,
// sends damage to the opponent: one line feeds yourself, the rest hurt.
func (p *Player) ProcessClears(clearedRows []int, opponent *Player) {
	cells := 0
	for _, n := range clearedRows {
		cells += n
	}
	p.Score += cells * pointsPerCell

	if lines := len(clearedRows); lines >= 2 {
		opponent.Damage((lines - 1) * damagePerLine)
	}
}

// Damage reduces health, knocking the player down at zero. A downed player
// takes no further damage.
func (p *Player) Damage(amount int) {
	if p.Down() {
		return
	}
	p.Health -= amount
	if p.Health <= 0 {
		p.Health = 0
		p.ReviveTime = reviveDelay
	}
}

// Update counts down the revive timer, restoring full health when it
// expires.
func (p *Player) Update(delta float64) {
	if !p.Down() {
		return
	}
	p.ReviveTime -= delta
	if p.ReviveTime <= 0 {
		p.ReviveTime = 0
		p.Health = StartingHealth
	}
}
