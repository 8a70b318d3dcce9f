package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/OdyseeTeam/pow-blocks/blockchain"
	"github.com/OdyseeTeam/pow-blocks/blockchain/digest"
	"github.com/OdyseeTeam/pow-blocks/storage"

	"github.com/sirupsen/logrus"
)

// Server exposes a chain and its explorer stores over HTTP. It only reads.
type Server struct {
	chain *blockchain.Chain
	db    *storage.BlockDB
	index *storage.Index
}

func New(chain *blockchain.Chain, db *storage.BlockDB, index *storage.Index) *Server {
	return &Server{chain: chain, db: db, index: index}
}

func (s *Server) Handler() http.Handler {
	httpServeMux := http.NewServeMux()
	httpServeMux.Handle("/blocks", s.blocks())
	httpServeMux.Handle("/block", s.block())
	httpServeMux.Handle("/validate", s.validate())
	if s.db != nil {
		httpServeMux.Handle("/sql", s.query())
	}
	if s.index != nil {
		httpServeMux.Handle("/hashes", s.hashes())
	}
	return httpServeMux
}

// Start serves in the background
func (s *Server) Start(addr string) {
	logrus.Infof("serving chain on %s", addr)
	go func() {
		err := http.ListenAndServe(addr, s.Handler())
		if err != nil {
			logrus.Error(err)
		}
	}()
}

func (s *Server) blocks() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.chain.Blocks())
	})
}

// block looks a block up by ?height= or, through the index, by ?hash=
func (s *Server) block() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var height uint64
		if hash := r.FormValue("hash"); hash != "" {
			if s.index == nil {
				writeError(w, http.StatusNotImplemented, "no hash index")
				return
			}
			parsed, err := digest.FromString(hash)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			h, ok, err := s.index.Height(parsed.String())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if !ok {
				writeError(w, http.StatusNotFound, "unknown hash")
				return
			}
			height = h
		} else {
			h, err := strconv.ParseUint(r.FormValue("height"), 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "need hash or height")
				return
			}
			height = h
		}

		b, ok := s.chain.Block(int(height))
		if !ok {
			writeError(w, http.StatusNotFound, "no block at that height")
			return
		}
		writeJSON(w, http.StatusOK, b.View())
	})
}

type verdictResponse struct {
	Valid  bool   `json:"valid"`
	Index  *int   `json:"index,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) validate() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := s.chain.Validate()
		resp := verdictResponse{Valid: v.Valid()}
		if !v.Valid() {
			resp.Index = &v.Index
			resp.Reason = v.Reason.String()
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

func (s *Server) query() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.FormValue("query")
		if q == "" {
			writeError(w, http.StatusBadRequest, "need a query")
			return
		}
		results, err := s.db.Query(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, results)
	})
}

func (s *Server) hashes() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hashes, err := s.index.Hashes()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, hashes)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	w.Write([]byte(msg))
}
