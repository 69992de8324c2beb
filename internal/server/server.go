// Package server is the local issue viewer: an HTML front end over the
// built issues plus a small JSON API mirroring the public issue files.
package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"

	"github.com/noyau-news/noyau/internal/database"
	"github.com/noyau-news/noyau/internal/distill"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Server is the HTTP server for browsing issues.
type Server struct {
	db        *database.DB
	freeItems int
	pages     map[string]*template.Template
	mux       *http.ServeMux
}

// New creates a Server. freeItems is the number of unlocked entries per
// issue; zero or negative unlocks everything.
func New(db *database.DB, freeItems int) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown":   renderMarkdown,
		"formatDate": formatDate,
	}

	// Parse base template first, then clone per page so each page gets
	// its own {{define "content"}} and {{define "title"}}.
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	pageNames := []string{"index.html", "issue.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, freeItems: freeItems, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/issue/", s.handleIssue)
	s.mux.HandleFunc("/api/issues/", s.handleIssueAPI)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	dates, err := s.db.ListIssueDates()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Dates": dates,
	})
}

// issueView wraps an issue item with its lock flag for the templates.
type issueView struct {
	database.IssueItem
	Locked bool
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimPrefix(r.URL.Path, "/issue/")
	if date == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	issue, err := s.db.GetIssue(date)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var items []issueView
	if issue != nil {
		for _, item := range issue.Items {
			items = append(items, issueView{IssueItem: item, Locked: s.locked(item.Rank)})
		}
	}

	s.render(w, "issue.html", map[string]any{
		"Date":  date,
		"Issue": issue,
		"Items": items,
	})
}

// apiIssue mirrors the public JSON files written by the issue builder.
type apiIssue struct {
	Date  string    `json:"date"`
	Items []apiItem `json:"items"`
}

type apiItem struct {
	Rank      int                `json:"rank"`
	Headline  string             `json:"headline"`
	Teaser    string             `json:"teaser"`
	Bullets   []string           `json:"bullets"`
	Citations []distill.Citation `json:"citations"`
	Locked    bool               `json:"locked"`
}

func (s *Server) handleIssueAPI(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimPrefix(r.URL.Path, "/api/issues/")
	if date == "" {
		http.NotFound(w, r)
		return
	}

	issue, err := s.db.GetIssue(date)
	if err != nil {
		http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
		return
	}
	if issue == nil {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	out := apiIssue{Date: issue.Date, Items: []apiItem{}}
	for _, item := range issue.Items {
		out.Items = append(out.Items, apiItem{
			Rank:      item.Rank,
			Headline:  item.Headline,
			Teaser:    item.Teaser,
			Bullets:   item.Bullets,
			Citations: item.Citations,
			Locked:    s.locked(item.Rank),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		log.Warn().Err(err).Msg("encoding issue API response")
	}
}

func (s *Server) locked(rank int) bool {
	return s.freeItems > 0 && rank > s.freeItems
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Error().Str("template", name).Msg("template not found")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Error().Str("template", name).Err(err).Msg("rendering template")
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

func formatDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("Mon, Jan 2 2006")
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, freeItems, port int) error {
	srv, err := New(db, freeItems)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Info().Str("addr", "http://"+addr).Msg("server listening")
	return http.ListenAndServe(addr, srv.Handler())
}
