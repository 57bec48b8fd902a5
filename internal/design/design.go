// Package design builds the randomised trial lists of a session.
package design

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/fipslab/fips/internal/models"
)

// Cells returns the full crossing of quadrants, motion durations and targets.
func Cells(d models.DesignConfig, t models.TimingConfig) []models.Cell {
	var cells []models.Cell
	for _, q := range d.Quadrants {
		for _, dur := range t.MotionDurationsMs {
			for _, tg := range d.Targets {
				cells = append(cells, models.Cell{Quadrant: q, MotionDurationMs: dur, Target: tg})
			}
		}
	}
	return cells
}

// Generator draws blocks of trial conditions from a seed.
type Generator struct {
	design models.DesignConfig
	timing models.TimingConfig
	cells  []models.Cell
	seed   uint64
}

// NewGenerator creates a generator over cells. Each block repeats every
// cell TotalTrials/Blocks times.
func NewGenerator(d models.DesignConfig, t models.TimingConfig, cells []models.Cell, seed uint64) (*Generator, error) {
	if len(cells) == 0 {
		return nil, fmt.Errorf("design has no conditions")
	}
	if d.Blocks < 1 {
		return nil, fmt.Errorf("design needs at least one block, got %d", d.Blocks)
	}
	if d.TotalTrials/d.Blocks < 1 {
		return nil, fmt.Errorf("%d repetitions cannot be split across %d blocks", d.TotalTrials, d.Blocks)
	}
	return &Generator{design: d, timing: t, cells: cells, seed: seed}, nil
}

// RepsPerBlock is how many times each cell appears in a block.
func (g *Generator) RepsPerBlock() int {
	return g.design.TotalTrials / g.design.Blocks
}

// Blocks returns every block of the session, each with its own random
// stream so a block can be regenerated on its own.
func (g *Generator) Blocks() []*Block {
	blocks := make([]*Block, g.design.Blocks)
	for i := range blocks {
		blocks[i] = g.Block(i)
	}
	return blocks
}

// Block builds block i: the repeated cells in full random order, each with
// its catch flag, fixation delay and cue cycles drawn.
func (g *Generator) Block(i int) *Block {
	rng := rand.New(rand.NewPCG(g.seed, uint64(i)))

	reps := g.RepsPerBlock()
	conds := make([]models.TrialCondition, 0, reps*len(g.cells))
	for range reps {
		for _, c := range g.cells {
			conds = append(conds, models.TrialCondition{
				Block:            i,
				Quadrant:         c.Quadrant,
				MotionDurationMs: c.MotionDurationMs,
				Target:           c.Target,
			})
		}
	}
	rng.Shuffle(len(conds), func(a, b int) { conds[a], conds[b] = conds[b], conds[a] })

	for j := range conds {
		conds[j].Index = j
		conds[j].Catch = rng.Float64() < g.design.CatchRate
		conds[j].FixationDelayMs = g.drawDelay(rng)
		conds[j].CueCycles = g.drawCueCycles(rng)
	}

	maxRequeues := 0
	if g.design.RequeueAborted {
		maxRequeues = g.design.MaxRequeues
	}
	return newBlock(i, conds, maxRequeues)
}

func (g *Generator) drawDelay(rng *rand.Rand) float64 {
	lo, hi := g.timing.FixationDelayMinMs, g.timing.FixationDelayMaxMs
	return math.Round(lo + rng.Float64()*(hi-lo))
}

func (g *Generator) drawCueCycles(rng *rand.Rand) int {
	lo, hi := g.timing.CueCyclesMin, g.timing.CueCyclesMax
	return lo + rng.IntN(hi-lo+1)
}

// Block is the trial list of one run. Aborted trials can be appended again
// up to a fixed number of times.
type Block struct {
	Index int

	conds       []models.TrialCondition
	next        int
	requeued    int
	maxRequeues int
}

func newBlock(index int, conds []models.TrialCondition, maxRequeues int) *Block {
	return &Block{Index: index, conds: conds, maxRequeues: maxRequeues}
}

// Next returns the next condition, or false when the block is done.
func (b *Block) Next() (models.TrialCondition, bool) {
	if b.next >= len(b.conds) {
		return models.TrialCondition{}, false
	}
	c := b.conds[b.next]
	b.next++
	return c, true
}

// Requeue appends c to the end of the block as a new attempt. It reports
// false once the block's requeue budget is spent.
func (b *Block) Requeue(c models.TrialCondition) bool {
	if b.requeued >= b.maxRequeues {
		return false
	}
	b.requeued++
	c.Attempt++
	c.Index = len(b.conds)
	b.conds = append(b.conds, c)
	return true
}

// Len is the number of conditions in the block, requeued ones included.
func (b *Block) Len() int {
	return len(b.conds)
}

// Requeued is the number of conditions appended by Requeue.
func (b *Block) Requeued() int {
	return b.requeued
}

// Conditions returns a copy of the block's conditions.
func (b *Block) Conditions() []models.TrialCondition {
	out := make([]models.TrialCondition, len(b.conds))
	copy(out, b.conds)
	return out
}
