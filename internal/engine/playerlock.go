package engine

import (
	"hash/fnv"
	"sync"
)

const lockShards = 64

// playerLocks сериализует решения по одному игроку: два конкурентных Evaluate
// для одного playerID не должны оба пройти Frequency Guard на несвежих
// счетчиках. Разные игроки идут полностью параллельно.
//
// Замки шардированы по хэшу playerID: коллизия шарда дает лишнюю
// сериализацию между разными игроками, но не ломает корректность.
type playerLocks struct {
	locks [lockShards]sync.Mutex
}

func newPlayerLocks() *playerLocks {
	return &playerLocks{}
}

func (p *playerLocks) lock(playerID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(playerID))
	return &p.locks[h.Sum32()%lockShards]
}
