//go:build linux

// Package echoserver implements the load target: a sharded epoll echo server
// that writes every byte it reads straight back to the peer. Each shard owns
// its own listening socket (SO_REUSEPORT) and epoll instance, so accepted
// connections never migrate between shards.
package echoserver

import (
	"encoding/binary"
	"fmt"
	"log"
	"net"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

// Config for a server. Zero values fall back to the defaults noted per field.
type Config struct {
	Address string // host:port to listen on; port 0 picks an ephemeral port
	Shards  int    // accept loops sharing the port; default runtime.NumCPU()
	BufSize int    // per-read buffer size in bytes; default 1024
}

type Server struct {
	host    string
	ip      [4]byte
	port    int
	shards  int
	bufSize int

	wakeFd  int
	listens []int
	closed  atomic.Bool
	wg      sync.WaitGroup
	bufPool sync.Pool
}

// New parses the config but opens no sockets. Only IPv4 listen addresses are
// supported.
func New(cfg Config) (*Server, error) {
	host, portStr, err := net.SplitHostPort(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("listen address %q: %w", cfg.Address, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return nil, fmt.Errorf("listen address %q: bad port", cfg.Address)
	}
	ip := net.ParseIP(host).To4()
	if ip == nil {
		return nil, fmt.Errorf("listen address %q: not an IPv4 address", cfg.Address)
	}

	s := &Server{
		host:    host,
		port:    port,
		shards:  cfg.Shards,
		bufSize: cfg.BufSize,
	}
	copy(s.ip[:], ip)
	if s.shards <= 0 {
		s.shards = runtime.NumCPU()
	}
	if s.bufSize <= 0 {
		s.bufSize = 1024
	}
	s.bufPool = sync.Pool{
		New: func() interface{} {
			return make([]byte, s.bufSize)
		},
	}
	return s, nil
}

// Start binds every shard and launches its serve loop. When the configured
// port is 0, the first shard's bound port is reused for the rest.
func (s *Server) Start() error {
	wake, err := unix.Eventfd(0, unix.EFD_NONBLOCK)
	if err != nil {
		return fmt.Errorf("eventfd: %w", err)
	}
	s.wakeFd = wake

	for i := 0; i < s.shards; i++ {
		fd, err := s.bindShard()
		if err != nil {
			s.closeFds()
			return err
		}
		s.listens = append(s.listens, fd)
	}
	for _, lfd := range s.listens {
		s.wg.Add(1)
		go s.serve(lfd)
	}
	return nil
}

// Addr reports the address clients should dial, with the port actually bound.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Wait blocks until every shard has exited.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Close wakes all shards, waits for them to drain their connections, and
// releases the listening sockets. Safe to call more than once.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	var one [8]byte
	binary.LittleEndian.PutUint64(one[:], 1)
	if _, err := unix.Write(s.wakeFd, one[:]); err != nil {
		return fmt.Errorf("wake shards: %w", err)
	}
	s.wg.Wait()
	s.closeFds()
	return nil
}

func (s *Server) closeFds() {
	for _, fd := range s.listens {
		syscall.Close(fd)
	}
	s.listens = nil
	syscall.Close(s.wakeFd)
}

func (s *Server) bindShard() (int, error) {
	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		syscall.Close(fd)
		return -1, fmt.Errorf("SO_REUSEPORT: %w", err)
	}
	if err := syscall.Bind(fd, &syscall.SockaddrInet4{Port: s.port, Addr: s.ip}); err != nil {
		syscall.Close(fd)
		return -1, fmt.Errorf("bind %s: %w", s.Addr(), err)
	}
	if s.port == 0 {
		sa, err := syscall.Getsockname(fd)
		if err != nil {
			syscall.Close(fd)
			return -1, fmt.Errorf("getsockname: %w", err)
		}
		s.port = sa.(*syscall.SockaddrInet4).Port
	}
	if err := syscall.Listen(fd, 65536); err != nil {
		syscall.Close(fd)
		return -1, fmt.Errorf("listen %s: %w", s.Addr(), err)
	}
	return fd, nil
}

// serve is one shard's event loop: accept on the listening fd, echo on
// connection fds, tear down on peer close or on the wake eventfd.
func (s *Server) serve(lfd int) {
	defer s.wg.Done()

	epfd, err := syscall.EpollCreate1(0)
	if err != nil {
		log.Printf("epoll_create1: %v", err)
		return
	}
	defer syscall.Close(epfd)

	for _, fd := range []int{lfd, s.wakeFd} {
		ev := &syscall.EpollEvent{Events: syscall.EPOLLIN, Fd: int32(fd)}
		if err := syscall.EpollCtl(epfd, syscall.EPOLL_CTL_ADD, fd, ev); err != nil {
			log.Printf("epoll_ctl add %d: %v", fd, err)
			return
		}
	}

	buffers := make(map[int32][]byte)
	defer func() {
		for fd, buf := range buffers {
			syscall.Close(int(fd))
			s.bufPool.Put(buf)
		}
	}()

	events := make([]syscall.EpollEvent, 1024)
	for {
		n, err := syscall.EpollWait(epfd, events, -1)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			log.Printf("epoll_wait: %v", err)
			return
		}

		for _, ev := range events[:n] {
			if int(ev.Fd) == s.wakeFd {
				// The eventfd is left unread so every shard sees it.
				return
			}

			if ev.Events&syscall.EPOLLIN != 0 {
				if int(ev.Fd) == lfd {
					s.accept(epfd, lfd, buffers)
				} else if buf, ok := buffers[ev.Fd]; ok {
					if !s.echo(int(ev.Fd), buf) {
						closeConn(epfd, ev.Fd, buffers, &s.bufPool)
					}
				}
			}

			if ev.Events&(syscall.EPOLLERR|syscall.EPOLLHUP|syscall.EPOLLRDHUP) != 0 {
				closeConn(epfd, ev.Fd, buffers, &s.bufPool)
			}
		}
	}
}

func (s *Server) accept(epfd, lfd int, buffers map[int32][]byte) {
	fd, _, err := syscall.Accept(lfd)
	if err != nil {
		log.Printf("accept: %v", err)
		return
	}
	ev := &syscall.EpollEvent{
		Events: syscall.EPOLLIN | syscall.EPOLLHUP | syscall.EPOLLRDHUP | syscall.EPOLLERR,
		Fd:     int32(fd),
	}
	if err := syscall.EpollCtl(epfd, syscall.EPOLL_CTL_ADD, fd, ev); err != nil {
		log.Printf("epoll_ctl add conn: %v", err)
		syscall.Close(fd)
		return
	}
	buffers[int32(fd)] = s.bufPool.Get().([]byte)
}

// echo reads once and writes everything read back. Returns false when the
// connection is done for.
func (s *Server) echo(fd int, buf []byte) bool {
	n, err := syscall.Read(fd, buf)
	if err != nil {
		if err == syscall.EAGAIN || err == syscall.EINTR {
			return true
		}
		log.Printf("read fd %d: %v", fd, err)
		return false
	}
	if n == 0 {
		return false
	}
	for off := 0; off < n; {
		w, err := syscall.Write(fd, buf[off:n])
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			log.Printf("write fd %d: %v", fd, err)
			return false
		}
		off += w
	}
	return true
}

func closeConn(epfd int, fd int32, buffers map[int32][]byte, pool *sync.Pool) {
	buf, ok := buffers[fd]
	if !ok {
		return
	}
	syscall.EpollCtl(epfd, syscall.EPOLL_CTL_DEL, int(fd), nil)
	delete(buffers, fd)
	pool.Put(buf)
	syscall.Close(int(fd))
}
