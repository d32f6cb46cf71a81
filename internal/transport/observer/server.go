package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"voxelcraft.ai/lumen/internal/observerproto"
	"voxelcraft.ai/lumen/internal/sim/light/engine"
	"voxelcraft.ai/lumen/internal/sim/light/nibble"
	"voxelcraft.ai/lumen/internal/sim/light/voxel"
	"voxelcraft.ai/lumen/internal/sim/world"
)

type Server struct {
	world *world.World
	log   *zap.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

func NewServer(w *world.World, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Routes registers every observer endpoint on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/status", s.StatusHandler())
	mux.HandleFunc("/v1/light", s.LightHandler())
	mux.HandleFunc("/v1/section", s.SectionHandler())
	mux.HandleFunc("/v1/ws", s.WSHandler())
}

func (s *Server) StatusHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		cfg := s.world.Config()
		st := s.world.Status()
		writeJSON(rw, observerproto.StatusResponse{
			ProtocolVersion: observerproto.Version,
			WorldID:         cfg.WorldID,
			Tick:            st.Tick,
			WorldParams: observerproto.WorldParams{
				Seed:       cfg.Seed,
				MinSection: cfg.MinSection,
				MaxSection: cfg.MaxSection,
				BoundaryR:  cfg.BoundaryR,
				Block:      cfg.Light.Block,
				Sky:        cfg.Light.Sky,
				Palette:    s.world.Catalogs().Blocks.Palette,
			},
			LoadedChunks: st.LoadedChunks,
			LitChunks:    st.LitChunks,
			Observers:    st.Observers,
			Light: observerproto.LightStats{
				ChunksLit:         st.Light.ChunksLit,
				Relights:          st.Light.Relights,
				Propagations:      st.Light.Propagations,
				SectionsPublished: st.Light.SectionsPublished,
				PendingChunks:     st.Light.PendingChunks,
				BlockEngines:      st.Light.Block.Engines,
				SkyEngines:        st.Light.Sky.Engines,
			},
		})
	}
}

func (s *Server) LightHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		x, y, z, err := queryXYZ(r)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		p := voxel.Pos{X: x, Y: y, Z: z}
		sample, err := s.world.LightAt(r.Context(), p)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(rw, observerproto.LightResponse{
			Pos:   [3]int{x, y, z},
			Lit:   sample.Lit,
			Block: sample.Block,
			Sky:   sample.Sky,
			Voxel: sample.Voxel,
		})
	}
}

// SectionHandler serves one section's published light; x, y and z are
// section coordinates.
func (s *Server) SectionHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		x, y, z, err := queryXYZ(r)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		var ch engine.Channel
		switch r.URL.Query().Get("channel") {
		case "block", "":
			ch = engine.BlockLight
		case "sky":
			ch = engine.SkyLight
		default:
			http.Error(rw, "channel must be block or sky", http.StatusBadRequest)
			return
		}
		sec := voxel.SectionPos{X: x, Y: y, Z: z}
		p, ok := s.world.SectionLight(sec, ch)
		if !ok {
			http.Error(rw, "section not available", http.StatusNotFound)
			return
		}
		resp := observerproto.SectionResponse{
			Section: [3]int{x, y, z},
			Channel: ch.String(),
			State:   p.State.String(),
		}
		if p.State == nibble.Initialized {
			resp.Encoding = observerproto.EncodingRLENibble
			resp.Data = p.EncodeText()
		}
		writeJSON(rw, resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		log := s.log.With(zap.String("session", sid))
		dataOut := make(chan []byte, 8192)
		ctrlOut := make(chan []byte, 64)

		joinReq := world.ObserverJoinRequest{
			SessionID: sid,
			Out:       dataOut,
			Center:    voxel.ChunkPos{X: sub.Center[0], Z: sub.Center[1]},
			Radius:    sub.Radius,
		}
		select {
		case s.world.ObserverJoin() <- joinReq:
		default:
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server busy"), time.Now().Add(time.Second))
			return
		}
		defer func() {
			select {
			case s.world.ObserverLeave() <- sid:
			case <-s.world.Done():
			}
		}()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				var b []byte
				var ok bool
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok = <-dataOut:
				case b, ok = <-ctrlOut:
				}
				if !ok {
					// The world dropped this session; unblock the reader.
					writeErr <- nil
					cancel()
					_ = conn.Close()
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					writeErr <- err
					cancel()
					return
				}
			}
		}()

		// Reader loop: SUBSCRIBE updates and SET_BLOCK edits.
		for ctx.Err() == nil {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var base struct {
				Type            string `json:"type"`
				ProtocolVersion string `json:"protocol_version"`
			}
			if err := json.Unmarshal(msg, &base); err != nil || base.ProtocolVersion != observerproto.Version {
				s.reply(ctrlOut, errorMsg("", "BAD_REQUEST", "unreadable message or wrong protocol_version"))
				continue
			}
			switch base.Type {
			case observerproto.TypeSubscribe:
				var sub observerproto.SubscribeMsg
				if err := json.Unmarshal(msg, &sub); err != nil {
					s.reply(ctrlOut, errorMsg("", "BAD_REQUEST", err.Error()))
					continue
				}
				req := world.ObserverSubscribeRequest{
					SessionID: sid,
					Center:    voxel.ChunkPos{X: sub.Center[0], Z: sub.Center[1]},
					Radius:    sub.Radius,
				}
				select {
				case s.world.ObserverSubscribe() <- req:
				default:
					// Drop updates under load; the client may resend.
				}
			case observerproto.TypeSetBlock:
				var set observerproto.SetBlockMsg
				if err := json.Unmarshal(msg, &set); err != nil {
					s.reply(ctrlOut, errorMsg("", "BAD_REQUEST", err.Error()))
					continue
				}
				s.reply(ctrlOut, s.setBlock(ctx, set))
			default:
				s.reply(ctrlOut, errorMsg("", "BAD_REQUEST", "unknown message type "+base.Type))
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case err := <-writeErr:
			if err != nil && err != context.Canceled {
				log.Debug("observer writer stopped", zap.Error(err))
			}
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// setBlock forwards one edit to the world loop and waits for its result.
func (s *Server) setBlock(ctx context.Context, m observerproto.SetBlockMsg) []byte {
	id, ok := s.world.Catalogs().Blocks.Index[m.Block]
	if !ok {
		return errorMsg(m.ID, "UNKNOWN_BLOCK", "unknown block "+m.Block)
	}
	resp := make(chan world.EditResult, 1)
	req := world.EditRequest{
		Pos:   voxel.Pos{X: m.Pos[0], Y: m.Pos[1], Z: m.Pos[2]},
		Block: id,
		Resp:  resp,
	}
	select {
	case s.world.Edits() <- req:
	default:
		return errorMsg(m.ID, "BUSY", "edit queue full")
	}
	select {
	case res := <-resp:
		if res.Err != nil {
			return errorMsg(m.ID, "REJECTED", res.Err.Error())
		}
		b, _ := json.Marshal(observerproto.SetBlockAckMsg{
			Type:            observerproto.TypeSetBlockAck,
			ProtocolVersion: observerproto.Version,
			ID:              m.ID,
			Changed:         res.Changed,
			Tick:            res.Tick,
		})
		return b
	case <-s.world.Done():
		return errorMsg(m.ID, "STOPPED", "world stopped")
	case <-ctx.Done():
		return nil
	}
}

func (s *Server) reply(out chan<- []byte, b []byte) {
	if b == nil {
		return
	}
	select {
	case out <- b:
	default:
		s.log.Debug("observer reply dropped")
	}
}

func errorMsg(id, code, message string) []byte {
	b, _ := json.Marshal(observerproto.ErrorMsg{
		Type:            observerproto.TypeError,
		ProtocolVersion: observerproto.Version,
		ID:              id,
		Code:            code,
		Message:         message,
	})
	return b
}

func queryXYZ(r *http.Request) (x, y, z int, err error) {
	q := r.URL.Query()
	var out [3]int
	for i, k := range []string{"x", "y", "z"} {
		v, err := strconv.Atoi(strings.TrimSpace(q.Get(k)))
		if err != nil {
			return 0, 0, 0, fmt.Errorf("bad %s: %q", k, q.Get(k))
		}
		out[i] = v
	}
	return out[0], out[1], out[2], nil
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
