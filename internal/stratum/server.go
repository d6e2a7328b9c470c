package stratum

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mining-tunnel/tunnel/internal/database"
	"github.com/mining-tunnel/tunnel/internal/miner"
	"github.com/mining-tunnel/tunnel/internal/poolstats"
)

// PersistenceSink is the narrow slice of the persistence adapter the
// dataplane needs; satisfied by *persistence.Adapter.
type PersistenceSink interface {
	RecordShare(share database.ShareRecord)
	PersistSnapshot(snap database.MinerSnapshot)
}

// Tunnel owns one accept loop bound to a local address, relaying every
// accepted connection to a single configured upstream pool.
type Tunnel struct {
	Name     string
	BindAddr string
	PoolName string
	PoolAddr string

	Miners *miner.Registry
	Pools  *poolstats.Registry
	Sink   PersistenceSink

	listener net.Listener
}

// Listen opens the local listener. Returns an error on bind failure, which
// is fatal at startup per the error handling design.
func (t *Tunnel) Listen() error {
	l, err := net.Listen("tcp", t.BindAddr)
	if err != nil {
		return fmt.Errorf("tunnel %s: failed to bind %s: %w", t.Name, t.BindAddr, err)
	}
	t.listener = l
	return nil
}

// Serve runs the accept loop until ctx is cancelled or the listener is
// closed. Each accepted connection spawns its own session goroutine and
// Serve never blocks waiting for sessions to finish.
func (t *Tunnel) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		t.listener.Close()
	}()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Printf("[WARN] tunnel %s: accept error: %v", t.Name, err)
				continue
			}
		}
		go t.handleConnection(ctx, conn)
	}
}

// handleConnection dials the upstream pool, registers a session, and runs
// the two-sided pump until either side terminates.
func (t *Tunnel) handleConnection(ctx context.Context, clientConn net.Conn) {
	host, port, err := net.SplitHostPort(clientConn.RemoteAddr().String())
	if err != nil {
		host, port = clientConn.RemoteAddr().String(), "0"
	}

	poolConn, err := net.DialTimeout("tcp", t.PoolAddr, 10*time.Second)
	if err != nil {
		log.Printf("[WARN] tunnel %s: dial upstream %s failed: %v", t.Name, t.PoolAddr, err)
		clientConn.Close()
		return
	}

	sessionID := uuid.NewString()
	sess := miner.New(host, port, t.PoolName)
	t.Miners.Insert(sess)
	poolMetrics := t.Pools.GetOrCreate(t.PoolName)

	log.Printf("[INFO] tunnel %s: session %s (%s) connected", t.Name, sessionID, sess.Key())

	p := &pump{
		tunnelName:  t.Name,
		sessionID:   sessionID,
		session:     sess,
		poolMetrics: poolMetrics,
		miners:      t.Miners,
		sink:        t.Sink,
		client:      clientConn,
		pool:        poolConn,
	}
	p.run(ctx)
}

// Close stops accepting new connections; in-flight sessions are left to
// their own pumps to tear down.
func (t *Tunnel) Close() error {
	if t.listener != nil {
		return t.listener.Close()
	}
	return nil
}

// pump coordinates the two unidirectional relays for a single session:
// the canonical "scissor" pattern, where closing one socket unblocks the
// other side's blocking read.
type pump struct {
	tunnelName  string
	sessionID   string
	session     *miner.Session
	poolMetrics *poolstats.Metrics
	miners      *miner.Registry
	sink        PersistenceSink

	client net.Conn
	pool   net.Conn

	teardownOnce sync.Once
}

func (p *pump) run(ctx context.Context) {
	done := make(chan struct{}, 2)

	go func() {
		p.relay(clientToPool)
		done <- struct{}{}
	}()
	go func() {
		p.relay(poolToClient)
		done <- struct{}{}
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	p.teardown()

	// Wait for the second pump to observe the closed socket and exit, so we
	// don't leak the goroutine past this function's return.
	<-done
}

type direction int

const (
	clientToPool direction = iota
	poolToClient
)

// relay reads one line at a time, writes it to the opposite peer first,
// then applies the parsed effect to session/pool state. Writing before
// mutating state means a peer never observes a reordered stream even if
// this goroutine is preempted mid-processing. The line is relayed and
// counted exactly as read, terminator bytes included, so the peer sees a
// byte-identical stream.
func (p *pump) relay(dir direction) {
	var reader net.Conn
	var writer net.Conn
	if dir == clientToPool {
		reader, writer = p.client, p.pool
	} else {
		reader, writer = p.pool, p.client
	}

	buf := bufio.NewReaderSize(reader, 64*1024)

	for {
		line, readErr := buf.ReadBytes('\n')
		if len(line) > 0 {
			if _, err := writer.Write(line); err != nil {
				log.Printf("[WARN] tunnel %s: session %s: relay write failed: %v", p.tunnelName, p.sessionID, err)
				return
			}

			p.session.TouchLastSeen()

			n := int64(len(line))
			if dir == clientToPool {
				atomic.AddInt64(&p.session.BytesUpload, n)
				atomic.AddInt64(&p.session.PacketsSent, 1)
			} else {
				atomic.AddInt64(&p.session.BytesDownload, n)
				atomic.AddInt64(&p.session.PacketsReceived, 1)
			}

			event := Classify(line)
			p.applyEffect(dir, event)
		}
		if readErr != nil {
			return
		}
	}
}

func (p *pump) applyEffect(dir direction, event Event) {
	switch event.Kind {
	case Ignore:
		if event.Malformed {
			log.Printf("[DEBUG] tunnel %s: session %s: malformed line relayed verbatim", p.tunnelName, p.sessionID)
		}

	case ClientAuthorize:
		p.session.Authorize(event.Username)
		log.Printf("[INFO] tunnel %s: session %s authorized as %s", p.tunnelName, p.sessionID, event.Username)

	case ClientSubmit:
		p.session.RecordSubmit(event.JobID)

	case PoolNotify:
		p.session.SetJobID(event.JobID)

	case PoolSetDifficulty:
		p.session.SetDifficulty(event.Difficulty)

	case PoolReply:
		p.applyPoolReply(event)
	}
}

// applyPoolReply attributes the reply to the session's last submit, gated
// to a 10-minute window so subscribe/authorize acknowledgments (which
// also carry a bool result) are not miscounted as shares.
func (p *pump) applyPoolReply(event Event) {
	lastSubmitAt, hasSubmit := p.session.LastSubmitAt()
	if !hasSubmit || time.Since(lastSubmitAt) > 10*time.Minute {
		if event.ReplyErrorPresent {
			log.Printf("[WARN] tunnel %s: session %s: pool error reply", p.tunnelName, p.sessionID)
		}
		return
	}

	if event.ReplyOK {
		p.session.AcceptShare()
		p.poolMetrics.IncrementAccepted()
		p.poolMetrics.AddAcceptTimeSample(float64(time.Since(lastSubmitAt).Milliseconds()))

		snap := p.session.Snapshot()
		p.sink.RecordShare(database.ShareRecord{
			Wallet:      snap.Wallet,
			MinerName:   snap.DisplayName,
			IP:          snap.RemoteIP,
			PoolName:    snap.PoolName,
			JobID:       snap.CurrentJobID,
			Accepted:    true,
			Difficulty:  snap.Difficulty,
			SubmittedAt: time.Now(),
		})
		log.Printf("[INFO] tunnel %s: session %s: share accepted", p.tunnelName, p.sessionID)
	} else {
		p.session.RejectShare()
		p.poolMetrics.IncrementRejected()

		snap := p.session.Snapshot()
		p.sink.RecordShare(database.ShareRecord{
			Wallet:      snap.Wallet,
			MinerName:   snap.DisplayName,
			IP:          snap.RemoteIP,
			PoolName:    snap.PoolName,
			JobID:       snap.CurrentJobID,
			Accepted:    false,
			Difficulty:  snap.Difficulty,
			SubmittedAt: time.Now(),
		})
		log.Printf("[INFO] tunnel %s: session %s: share rejected", p.tunnelName, p.sessionID)
	}

	if event.ReplyErrorPresent {
		log.Printf("[WARN] tunnel %s: session %s: pool error reply alongside result", p.tunnelName, p.sessionID)
	}
}

// teardown is idempotent: whichever caller arrives first removes the
// session and persists a snapshot; later calls are no-ops.
func (p *pump) teardown() {
	p.teardownOnce.Do(p.doTeardown)
}

func (p *pump) doTeardown() {
	p.client.Close()
	p.pool.Close()

	p.miners.Remove(p.session.Key())

	delta := p.session.DeltaSincePersist()
	p.sink.PersistSnapshot(database.MinerSnapshot{
		Wallet:          delta.Wallet,
		MinerName:       delta.DisplayName,
		IP:              delta.RemoteIP,
		PoolName:        delta.PoolName,
		SharesAccepted:  delta.SharesAccepted,
		SharesRejected:  delta.SharesRejected,
		BytesDownload:   delta.BytesDownload,
		BytesUpload:     delta.BytesUpload,
		PacketsSent:     delta.PacketsSent,
		PacketsReceived: delta.PacketsReceived,
		CurrentHashrate: delta.CurrentHashrate,
		AverageHashrate: delta.AverageHashrate,
		ConnectedAt:     delta.ConnectedAt,
		LastSeen:        delta.LastSeen,
	})
	p.session.MarkPersisted()

	log.Printf("[INFO] tunnel %s: session %s torn down", p.tunnelName, p.sessionID)
}
