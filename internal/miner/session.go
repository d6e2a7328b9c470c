// Package miner holds the in-memory registry of live mining-client
// sessions and the derived hashrate estimate attached to each one.
package miner

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const hashrateWindow = 10 * time.Minute

// Session is one live client connection paired with its upstream pool
// connection. Counters are plain int64 fields mutated only through
// sync/atomic so pumps never need to take the session lock just to bump a
// byte count. Everything else (wallet, display name, job id, timestamps,
// the submit-time ring) is guarded by mu.
type Session struct {
	RemoteIP   string
	RemotePort string
	PoolName   string

	SharesAccepted  int64
	SharesRejected  int64
	BytesUpload     int64
	BytesDownload   int64
	PacketsSent     int64
	PacketsReceived int64

	mu                sync.RWMutex
	wallet            string
	displayName       string
	currentJobID      string
	connectedAt       time.Time
	lastSeen          time.Time
	lastSubmitAt      time.Time
	recentSubmitTimes []time.Time
	currentHashrate   float64
	averageHashrate   float64
	difficulty        float64
	lastPersistCounts counterSnapshot
}

type counterSnapshot struct {
	sharesAccepted  int64
	sharesRejected  int64
	bytesUpload     int64
	bytesDownload   int64
	packetsSent     int64
	packetsReceived int64
}

// Key returns the "ip:port" string used as the registry key.
func Key(ip, port string) string {
	return ip + ":" + port
}

// New creates a session in its pre-authorization state: wallet and display
// name empty/"Unknown", difficulty defaulted to 1.0.
func New(remoteIP, remotePort, poolName string) *Session {
	now := time.Now()
	return &Session{
		RemoteIP:    remoteIP,
		RemotePort:  remotePort,
		PoolName:    poolName,
		connectedAt: now,
		lastSeen:    now,
		displayName: "Unknown",
		difficulty:  1.0,
	}
}

// Key returns this session's registry key.
func (s *Session) Key() string {
	return Key(s.RemoteIP, s.RemotePort)
}

// TouchLastSeen updates last_seen to now; called on every observed line in
// either direction, regardless of parser outcome.
func (s *Session) TouchLastSeen() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// Authorize applies the effect of a mining.authorize line: the wallet is
// the prefix of the username up to the first '.', the display name is the
// full username.
func (s *Session) Authorize(username string) {
	wallet := username
	if idx := strings.IndexByte(username, '.'); idx >= 0 {
		wallet = username[:idx]
	}

	s.mu.Lock()
	s.displayName = username
	s.wallet = wallet
	s.mu.Unlock()
}

// RecordSubmit applies the effect of a mining.submit line.
func (s *Session) RecordSubmit(jobID string) {
	now := time.Now()

	s.mu.Lock()
	s.currentJobID = jobID
	s.lastSubmitAt = now
	s.recentSubmitTimes = append(s.recentSubmitTimes, now)
	s.mu.Unlock()
}

// SetJobID applies the effect of a mining.notify line.
func (s *Session) SetJobID(jobID string) {
	s.mu.Lock()
	s.currentJobID = jobID
	s.mu.Unlock()
}

// SetDifficulty applies the effect of a mining.set_difficulty line.
func (s *Session) SetDifficulty(value float64) {
	s.mu.Lock()
	s.difficulty = value
	s.mu.Unlock()
}

// LastSubmitAt returns the timestamp of the most recent submit, and whether
// one has ever been observed.
func (s *Session) LastSubmitAt() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSubmitAt, !s.lastSubmitAt.IsZero()
}

// AcceptShare records an accepted share on the session and recomputes the
// hashrate estimate from the recent submit window.
func (s *Session) AcceptShare() {
	atomic.AddInt64(&s.SharesAccepted, 1)
	s.recalculateHashrate()
}

// RejectShare records a rejected share; no hashrate recalculation.
func (s *Session) RejectShare() {
	atomic.AddInt64(&s.SharesRejected, 1)
}

func (s *Session) recalculateHashrate() {
	now := time.Now()
	cutoff := now.Add(-hashrateWindow)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.recentSubmitTimes[:0]
	for _, t := range s.recentSubmitTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.recentSubmitTimes = kept

	if len(s.recentSubmitTimes) < 2 {
		s.currentHashrate = 0
	} else {
		first := s.recentSubmitTimes[0]
		last := s.recentSubmitTimes[len(s.recentSubmitTimes)-1]
		span := last.Sub(first).Seconds()
		if span > 0 {
			sharesPerSecond := float64(len(s.recentSubmitTimes)) / span
			s.currentHashrate = sharesPerSecond * s.difficulty
		}
	}

	if s.averageHashrate == 0 {
		s.averageHashrate = s.currentHashrate
	} else {
		s.averageHashrate = s.averageHashrate*0.9 + s.currentHashrate*0.1
	}
}

// Snapshot is an immutable, lock-free copy of a session's fields, safe to
// read from the HTTP surface or hand to the persistence adapter.
type Snapshot struct {
	RemoteIP        string
	RemotePort      string
	Wallet          string
	DisplayName     string
	PoolName        string
	CurrentJobID    string
	SharesAccepted  int64
	SharesRejected  int64
	BytesUpload     int64
	BytesDownload   int64
	PacketsSent     int64
	PacketsReceived int64
	ConnectedAt     time.Time
	LastSeen        time.Time
	CurrentHashrate float64
	AverageHashrate float64
	Difficulty      float64
}

// Snapshot takes the read lock just long enough to copy out consistent
// field values.
func (s *Session) Snapshot() Snapshot {
	accepted := atomic.LoadInt64(&s.SharesAccepted)
	rejected := atomic.LoadInt64(&s.SharesRejected)
	upload := atomic.LoadInt64(&s.BytesUpload)
	download := atomic.LoadInt64(&s.BytesDownload)
	sent := atomic.LoadInt64(&s.PacketsSent)
	received := atomic.LoadInt64(&s.PacketsReceived)

	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		RemoteIP:        s.RemoteIP,
		RemotePort:      s.RemotePort,
		Wallet:          s.wallet,
		DisplayName:     s.displayName,
		PoolName:        s.PoolName,
		CurrentJobID:    s.currentJobID,
		SharesAccepted:  accepted,
		SharesRejected:  rejected,
		BytesUpload:     upload,
		BytesDownload:   download,
		PacketsSent:     sent,
		PacketsReceived: received,
		ConnectedAt:     s.connectedAt,
		LastSeen:        s.lastSeen,
		CurrentHashrate: s.currentHashrate,
		AverageHashrate: s.averageHashrate,
		Difficulty:      s.difficulty,
	}
}

// DeltaSincePersist returns the counters accrued since the last call to
// MarkPersisted (or since session creation, if never called), and the
// snapshot needed to build a MinerSnapshot row. This is what makes the
// additive upsert in the persistence layer correct: the pump hands over a
// delta, not the session's cumulative lifetime counters.
func (s *Session) DeltaSincePersist() (delta Snapshot) {
	full := s.Snapshot()

	s.mu.Lock()
	prev := s.lastPersistCounts
	s.mu.Unlock()

	delta = full
	delta.SharesAccepted -= prev.sharesAccepted
	delta.SharesRejected -= prev.sharesRejected
	delta.BytesUpload -= prev.bytesUpload
	delta.BytesDownload -= prev.bytesDownload
	delta.PacketsSent -= prev.packetsSent
	delta.PacketsReceived -= prev.packetsReceived
	return delta
}

// MarkPersisted records the current cumulative counters as the new
// baseline for future DeltaSincePersist calls.
func (s *Session) MarkPersisted() {
	accepted := atomic.LoadInt64(&s.SharesAccepted)
	rejected := atomic.LoadInt64(&s.SharesRejected)
	upload := atomic.LoadInt64(&s.BytesUpload)
	download := atomic.LoadInt64(&s.BytesDownload)
	sent := atomic.LoadInt64(&s.PacketsSent)
	received := atomic.LoadInt64(&s.PacketsReceived)

	s.mu.Lock()
	s.lastPersistCounts = counterSnapshot{
		sharesAccepted:  accepted,
		sharesRejected:  rejected,
		bytesUpload:     upload,
		bytesDownload:   download,
		packetsSent:     sent,
		packetsReceived: received,
	}
	s.mu.Unlock()
}
