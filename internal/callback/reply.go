package callback

import (
	"encoding/json"
	"net/http"
)

// Reply is the HTTP response written for one request.
type Reply struct {
	Status      int
	ContentType string
	Body        []byte
}

// JSONReply encodes v as the response body.
func JSONReply(status int, v any) Reply {
	body, err := json.Marshal(v)
	if err != nil {
		return Reply{Status: http.StatusInternalServerError, ContentType: "text/plain; charset=utf-8", Body: []byte("internal error")}
	}
	return Reply{Status: status, ContentType: "application/json", Body: append(body, '\n')}
}

// HTMLReply returns an HTML page.
func HTMLReply(status int, html string) Reply {
	return Reply{Status: status, ContentType: "text/html; charset=utf-8", Body: []byte(html)}
}

func writeReply(w http.ResponseWriter, reply Reply) {
	if reply.Status == 0 {
		reply.Status = http.StatusOK
	}
	if reply.ContentType != "" {
		w.Header().Set("Content-Type", reply.ContentType)
	}
	w.WriteHeader(reply.Status)
	_, _ = w.Write(reply.Body)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
