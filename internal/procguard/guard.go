// Package procguard tracks every headless-browser process the scraper
// spawns and guarantees it is terminated on success, failure, timeout or
// caller bugs. It exists because an untracked chromium can outlive the run
// that started it and slowly exhaust the host.
package procguard

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/process"
)

// Killer terminates a process by pid. Injected so tests never touch real
// processes.
type Killer func(pid int32) error

// ProcessLister reports live (pid, name) pairs for the orphan scan.
type ProcessLister func() (map[int32]string, error)

// Handle identifies one tracked acquisition.
type Handle struct {
	id string
}

type entry struct {
	pid        int32
	note       string
	acquiredAt time.Time
}

// Guard is the process-wide handle table. Safe for concurrent
// Acquire/Release/Sweep.
type Guard struct {
	mu      sync.Mutex
	handles map[string]entry

	// browserNames are process-name substrings the orphan scan force-kills
	// when they are alive but unknown to the table.
	browserNames []string

	kill Killer
	list ProcessLister
	now  func() time.Time
}

func New(browserNames []string) *Guard {
	return &Guard{
		handles:      make(map[string]entry),
		browserNames: browserNames,
		kill:         defaultKill,
		list:         defaultList,
		now:          time.Now,
	}
}

// Acquire registers a spawned process in the handle table. Registration
// happens at creation time, before any work, so a crash between spawn and
// release still leaves the pid sweepable.
func (g *Guard) Acquire(pid int32, note string) Handle {
	h := Handle{id: uuid.New().String()}
	g.mu.Lock()
	g.handles[h.id] = entry{pid: pid, note: note, acquiredAt: g.now()}
	g.mu.Unlock()
	return h
}

// Release removes a handle from the table. Idempotent: releasing an already
// released or swept handle is a no-op, never a double-kill.
func (g *Guard) Release(h Handle) {
	g.mu.Lock()
	delete(g.handles, h.id)
	g.mu.Unlock()
}

// Tracked reports how many handles are currently registered.
func (g *Guard) Tracked() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.handles)
}

// Sweep force-kills every tracked handle older than maxAge and removes it
// from the table, then kills any live browser process the table does not
// know about (an orphan from a crashed run). maxAge zero means everything
// tracked is stale. Returns the number of processes killed.
func (g *Guard) Sweep(maxAge time.Duration) int {
	cutoff := g.now().Add(-maxAge)

	// Take stale entries out of the table under the lock, kill outside it
	// so a slow kill never blocks in-flight Acquire/Release.
	g.mu.Lock()
	var stale []entry
	for id, e := range g.handles {
		if !e.acquiredAt.After(cutoff) {
			stale = append(stale, e)
			delete(g.handles, id)
		}
	}
	g.mu.Unlock()

	killed := 0
	for _, e := range stale {
		if err := g.kill(e.pid); err != nil {
			log.Printf("procguard: kill pid %d (%s): %v", e.pid, e.note, err)
			continue
		}
		log.Printf("procguard: killed stale pid %d (%s)", e.pid, e.note)
		killed++
	}

	killed += g.sweepOrphans()
	return killed
}

func (g *Guard) sweepOrphans() int {
	if len(g.browserNames) == 0 {
		return 0
	}
	live, err := g.list()
	if err != nil {
		log.Printf("procguard: list processes: %v", err)
		return 0
	}

	// The table is re-read after the process listing: a browser acquired
	// while the listing was being taken is tracked, not an orphan.
	g.mu.Lock()
	tracked := make(map[int32]bool, len(g.handles))
	for _, e := range g.handles {
		tracked[e.pid] = true
	}
	g.mu.Unlock()

	killed := 0
	for pid, name := range live {
		if tracked[pid] || !g.isBrowser(name) {
			continue
		}
		if err := g.kill(pid); err != nil {
			log.Printf("procguard: kill orphan pid %d (%s): %v", pid, name, err)
			continue
		}
		log.Printf("procguard: killed orphan browser pid %d (%s)", pid, name)
		killed++
	}
	return killed
}

func (g *Guard) isBrowser(name string) bool {
	name = strings.ToLower(name)
	for _, b := range g.browserNames {
		if strings.Contains(name, strings.ToLower(b)) {
			return true
		}
	}
	return false
}

func defaultKill(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func defaultList() (map[int32]string, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}
	out := make(map[int32]string, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		out[p.Pid] = name
	}
	return out, nil
}
