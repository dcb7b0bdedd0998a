package grade

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"
)

// Roller はsides面のダイスを1つ振り、1~sidesの値を返します。
type Roller interface {
	Roll(sides int) int
}

// RollerFunc adapts a function to the Roller interface.
type RollerFunc func(sides int) int

func (f RollerFunc) Roll(sides int) int {
	return f(sides)
}

// RandRoller は複数のゴルーチンから共有できる乱数ローラーです。
type RandRoller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandRoller creates a roller seeded with seed.
// 同じシードであれば同じ出目の列になる。
func NewRandRoller(seed int64) *RandRoller {
	return &RandRoller{rng: rand.New(rand.NewSource(seed))}
}

func (r *RandRoller) Roll(sides int) int {
	if sides <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(sides) + 1
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}
