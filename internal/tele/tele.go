// Package tele is remote control over MQTT.
// Commands are lines of internal/command language, responses are command.Reply strings.
package tele

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/ks0066/internal/command"
	"github.com/temoto/ks0066/log2"
	"github.com/temoto/spq"
)

const DefaultRetryDelay = 5 * time.Second

// Executor runs one command line, see command.Run.
type Executor func(ctx context.Context, line string) (string, error)

// Tele contract:
// - Init() fails only with invalid config, network issues ignored
// - received commands are persisted before execution, executed once in order
// - responses and errors are persisted and delivered at least once
// - Close() stops worker, undelivered messages stay in queue for next start
type Tele struct {
	config     Config
	log        *log2.Log
	exec       Executor
	transport  Transporter
	q          *spq.Queue
	alive      *alive.Alive
	retryDelay time.Duration
	stat       Stat
}

type Stat struct {
	Received  uint32
	Executed  uint32
	Failed    uint32
	Delivered uint32
}

func New(exec Executor) *Tele {
	return &Tele{exec: exec}
}
func NewWithTransporter(exec Executor, trans Transporter) *Tele {
	return &Tele{exec: exec, transport: trans}
}

func (self *Tele) Init(ctx context.Context, log *log2.Log, config Config) error {
	self.config = config
	self.log = log
	if !config.Enable {
		self.log.Infof("tele disabled")
		return nil
	}
	if self.exec == nil {
		return errors.NotValidf("tele executor=nil")
	}
	if config.QueuePath == "" {
		return errors.NotValidf("tele queue_path=empty")
	}
	if self.retryDelay == 0 {
		self.retryDelay = DefaultRetryDelay
	}
	var err error
	self.q, err = spq.Open(config.QueuePath)
	if err != nil {
		return errors.Annotatef(err, "tele queue_path=%s", config.QueuePath)
	}

	// test code sets .transport
	if self.transport == nil {
		self.transport = &transportMqtt{}
	}
	if err = self.transport.Init(ctx, log, config, self.onCommandMessage); err != nil {
		self.q.Close()
		return errors.Annotate(err, "tele transport")
	}

	self.alive = alive.NewAlive()
	self.alive.Add(1)
	go self.qworker(ctx)
	return nil
}

func (self *Tele) Close() {
	if self.q == nil {
		return
	}
	self.alive.Stop()
	self.q.Close()
	self.alive.Wait()
	self.transport.Close()
}

func (self *Tele) Stat() Stat {
	return Stat{
		Received:  atomic.LoadUint32(&self.stat.Received),
		Executed:  atomic.LoadUint32(&self.stat.Executed),
		Failed:    atomic.LoadUint32(&self.stat.Failed),
		Delivered: atomic.LoadUint32(&self.stat.Delivered),
	}
}

// Error queues error report, suitable for log2.SetErrorFunc.
func (self *Tele) Error(err error) {
	if err == nil || self.q == nil {
		return
	}
	if errPush := self.q.Push(tagged(qError, []byte(err.Error()))); errPush != nil {
		// not self.log.Error, that would loop back here
		self.log.Infof("tele CRITICAL error push err=%v", errPush)
	}
}

func (self *Tele) onCommandMessage(ctx context.Context, payload []byte) bool {
	atomic.AddUint32(&self.stat.Received, 1)
	if err := self.q.Push(tagged(qCommand, payload)); err != nil {
		self.log.Errorf("tele command push payload=%q err=%v", payload, err)
		return false
	}
	return true
}

// denote value type in persistent queue bytes form
const (
	qCommand  byte = 1
	qResponse byte = 2
	qError    byte = 3
)

func tagged(tag byte, payload []byte) []byte {
	b := make([]byte, 0, 1+len(payload))
	return append(append(b, tag), payload...)
}

func (self *Tele) qworker(parent context.Context) {
	defer self.alive.Done()
	// running command is interrupted by Close
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go func() {
		select {
		case <-self.alive.StopChan():
			cancel()
		case <-ctx.Done():
		}
	}()
	for {
		box, err := self.q.Peek()
		switch err {
		case nil:
			b := box.Bytes()
			del, err := self.qhandle(ctx, b)
			if err != nil {
				self.log.Errorf("tele qhandle b=%x err=%v", b, err)
			}
			if del {
				if err = self.q.Delete(box); err != nil {
					self.log.Errorf("tele qhandle Delete b=%x err=%v", b, err)
				}
			} else {
				if err = self.q.DeletePush(box); err != nil {
					self.log.Errorf("tele qhandle DeletePush b=%x err=%v", b, err)
				}
				select {
				case <-time.After(self.retryDelay):
				case <-self.alive.StopChan():
				}
			}

		case spq.ErrClosed:
			if self.alive.IsRunning() {
				self.log.Errorf("CRITICAL tele spq closed unexpectedly")
			}
			return

		default:
			self.log.Errorf("CRITICAL tele spq err=%v", err)
			return
		}
	}
}

// qhandle returns true when item is done and may be deleted.
func (self *Tele) qhandle(ctx context.Context, b []byte) (bool, error) {
	if len(b) == 0 {
		return true, errors.Errorf("tele spq peek=empty")
	}

	switch b[0] {
	case qCommand:
		line := string(b[1:])
		result, err := self.exec(ctx, line)
		if err != nil {
			atomic.AddUint32(&self.stat.Failed, 1)
			self.log.Debugf("tele command=%q err=%v", line, err)
		} else {
			atomic.AddUint32(&self.stat.Executed, 1)
		}
		reply := command.Reply(result, err)
		// command is done, do not repeat it if response push fails
		return true, self.q.Push(tagged(qResponse, []byte(reply)))

	case qResponse:
		ok := self.transport.SendResponse(b[1:])
		if ok {
			atomic.AddUint32(&self.stat.Delivered, 1)
		}
		return ok, nil

	case qError:
		return self.transport.SendError(b[1:]), nil

	default:
		return true, errors.Errorf("unknown kind=%d", b[0])
	}
}
