package rag

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/ziadkadry99/siterag/internal/logger"
	"github.com/ziadkadry99/siterag/internal/render"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsRequest is the incoming WebSocket message format.
type wsRequest struct {
	Type    string `json:"type"` // "ask" or "search"
	ID      string `json:"id"`
	Content string `json:"content"`
	K       int    `json:"k"`
	Format  string `json:"format"`
}

// wsResponse is the outgoing WebSocket message format.
type wsResponse struct {
	Type    string         `json:"type"` // "response", "results" or "error"
	ID      string         `json:"id,omitempty"`
	Content string         `json:"content,omitempty"`
	HTML    string         `json:"html,omitempty"`
	Code    string         `json:"code,omitempty"`
	Sources []Source       `json:"sources,omitempty"`
	Results []searchResult `json:"results,omitempty"`
}

func handleWebSocket(svc *Service, renderer *render.Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("WebSocket upgrade failed", "err", err)
			return
		}
		defer conn.Close()

		// The request context carries the router timeout, which must not
		// bound a long-lived connection.
		ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
		defer cancel()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn("WebSocket read failed", "err", err)
				}
				return
			}

			var req wsRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				sendWS(conn, wsResponse{Type: "error", Code: "InvalidInput", Content: "invalid message format"})
				continue
			}

			switch req.Type {
			case "ask", "":
				sendWS(conn, wsAsk(ctx, svc, renderer, req))
			case "search":
				sendWS(conn, wsSearch(ctx, svc, req))
			default:
				sendWS(conn, wsResponse{Type: "error", ID: req.ID, Code: "InvalidInput",
					Content: "unknown message type: " + req.Type})
			}
		}
	}
}

func wsAsk(ctx context.Context, svc *Service, renderer *render.Renderer, req wsRequest) wsResponse {
	ans, err := svc.Ask(ctx, req.Content, req.K)
	if err != nil {
		return wsError(req.ID, err)
	}
	resp := wsResponse{Type: "response", ID: req.ID, Content: ans.Response, Sources: ans.Sources}
	if req.Format == "html" && renderer != nil {
		if html, err := renderer.HTML(ans.Response); err == nil {
			resp.HTML = html
		}
	}
	return resp
}

func wsSearch(ctx context.Context, svc *Service, req wsRequest) wsResponse {
	results, err := svc.Search(ctx, req.Content, req.K)
	if err != nil {
		return wsError(req.ID, err)
	}
	resp := wsResponse{Type: "results", ID: req.ID, Results: make([]searchResult, len(results))}
	for i, res := range results {
		resp.Results[i] = searchResult{URL: res.URL, Score: res.Score, Snippet: res.Snippet}
	}
	return resp
}

func wsError(id string, err error) wsResponse {
	_, code := statusFor(err)
	return wsResponse{Type: "error", ID: id, Code: code, Content: err.Error()}
}

func sendWS(conn *websocket.Conn, resp wsResponse) {
	if err := conn.WriteJSON(resp); err != nil {
		logger.Default().Warn("WebSocket write failed", "err", err)
	}
}
