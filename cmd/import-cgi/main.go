package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	pdf "github.com/dslipak/pdf"
	"github.com/joho/godotenv"
	"github.com/juristax/juristax-rag/internal/cache"
	"github.com/juristax/juristax-rag/internal/config"
	"github.com/juristax/juristax-rag/internal/db"
	"github.com/juristax/juristax-rag/internal/llm"
	"github.com/juristax/juristax-rag/internal/rag"
	"golang.org/x/net/html"
)

func main() {
	_ = godotenv.Load()

	versionFlag := flag.String("version", "", "édition du code (ex: 2025, 2026)")
	pathFlag := flag.String("path", "", "répertoire contenant les fichiers de l'édition (.md/.txt/.html/.pdf)")
	dryRun := flag.Bool("dry-run", false, "découper sans insérer (contrôle du parsing)")
	flag.Parse()

	if *versionFlag == "" {
		log.Fatal("obligatoire: --version")
	}
	if *pathFlag == "" {
		log.Fatal("obligatoire: --path")
	}

	ctx := context.Background()
	cfg := config.Load()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("erreur connexion db: %v", err)
	}
	defer pool.Close()

	repo := rag.NewPgRepository(pool)

	geminiClient, err := llm.NewGeminiClient(ctx)
	if err != nil {
		log.Fatalf("erreur client Gemini: %v", err)
	}

	var store rag.CacheStore
	if cfg.RedisAddr != "" {
		store = cache.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword)
	}
	embedder := rag.NewCachedEmbedder(
		&rag.RetryingEmbeddings{Inner: geminiClient, Cfg: rag.DefaultCallConfig()},
		store,
		cfg.EmbedCacheTTL,
	)

	if err := importEdition(ctx, repo, embedder, *versionFlag, *pathFlag, *dryRun); err != nil {
		log.Fatalf("erreur import: %v", err)
	}

	log.Println("import terminé")
}

func importEdition(
	ctx context.Context,
	repo rag.Repository,
	embedder *rag.CachedEmbedder,
	version, rootPath string,
	dryRun bool,
) error {
	log.Printf("import édition %s depuis %s", version, rootPath)

	var articles []rag.Article
	err := filepath.WalkDir(rootPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isTextFile(path) {
			return nil
		}

		content, err := extractText(path)
		if err != nil {
			return fmt.Errorf("lecture %s: %w", path, err)
		}
		content = sanitizeUTF8(strings.TrimSpace(content))
		if content == "" {
			return nil
		}

		split := splitArticles(content, version)
		log.Printf("%s: %d articles", filepath.Base(path), len(split))
		articles = append(articles, split...)
		return nil
	})
	if err != nil {
		return err
	}
	if len(articles) == 0 {
		return fmt.Errorf("aucun article trouvé sous %s", rootPath)
	}
	if dryRun {
		for _, a := range articles {
			log.Printf("  %s — %s (%s / %s / %s) len=%d", a.Numero, a.Titre, a.Tome, a.Livre, a.Chapitre, len(a.Contenu))
		}
		return nil
	}

	texts := make([]string, len(articles))
	for i, a := range articles {
		texts[i] = a.Contenu
	}
	embeddings, err := embedder.EmbedMany(ctx, texts)
	if err != nil {
		return fmt.Errorf("embeddings: %w", err)
	}

	for i := range articles {
		id, err := repo.InsertArticle(ctx, &articles[i], embeddings[i].Vector)
		if err != nil {
			return fmt.Errorf("insertion %s: %w", articles[i].Numero, err)
		}
		log.Printf("article importé id=%d numero=%s version=%s cached=%v", id, articles[i].Numero, version, embeddings[i].Cached)
	}

	return nil
}

var (
	articleHeadingRe  = regexp.MustCompile(`(?mi)^\s*Article\s+(\d{1,4}\s*(?:bis|ter|[A-Z])?)\s*(?:[.:–—-]\s*(.*))?$`)
	tomeHeadingRe     = regexp.MustCompile(`(?mi)^\s*(TOME\s+\S+.*)$`)
	livreHeadingRe    = regexp.MustCompile(`(?mi)^\s*(LIVRE\s+\S+.*)$`)
	chapitreHeadingRe = regexp.MustCompile(`(?mi)^\s*(CHAPITRE\s+\S+.*)$`)
)

// splitArticles walks the statute line by line, opening a new article at each
// "Article N" heading and tagging it with the most recent structural
// headings (tome/livre/chapitre).
func splitArticles(content, version string) []rag.Article {
	var (
		articles []rag.Article
		current  *rag.Article
		body     strings.Builder
		tome     string
		livre    string
		chapitre string
	)

	flush := func() {
		if current == nil {
			return
		}
		current.Contenu = strings.TrimSpace(body.String())
		if current.Contenu != "" {
			articles = append(articles, *current)
		}
		current = nil
		body.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		switch {
		case tomeHeadingRe.MatchString(line):
			flush()
			tome = strings.TrimSpace(tomeHeadingRe.FindStringSubmatch(line)[1])
			livre, chapitre = "", ""
		case livreHeadingRe.MatchString(line):
			flush()
			livre = strings.TrimSpace(livreHeadingRe.FindStringSubmatch(line)[1])
			chapitre = ""
		case chapitreHeadingRe.MatchString(line):
			flush()
			chapitre = strings.TrimSpace(chapitreHeadingRe.FindStringSubmatch(line)[1])
		case articleHeadingRe.MatchString(line):
			flush()
			m := articleHeadingRe.FindStringSubmatch(line)
			numero := "Art. " + rag.CanonicalNumero(m[1])
			current = &rag.Article{
				Numero:   numero,
				Titre:    strings.TrimSpace(m[2]),
				Version:  version,
				Tome:     tome,
				Livre:    livre,
				Chapitre: chapitre,
			}
		default:
			if current != nil {
				body.WriteString(strings.TrimSpace(line))
				body.WriteRune('\n')
			}
		}
	}
	flush()

	return articles
}

func isTextFile(path string) bool {
	l := strings.ToLower(path)
	return strings.HasSuffix(l, ".md") ||
		strings.HasSuffix(l, ".txt") ||
		strings.HasSuffix(l, ".html") ||
		strings.HasSuffix(l, ".htm") ||
		strings.HasSuffix(l, ".pdf")
}

func extractText(path string) (string, error) {
	l := strings.ToLower(path)
	switch {
	case strings.HasSuffix(l, ".pdf"):
		return extractTextFromPDF(path)
	case strings.HasSuffix(l, ".html"), strings.HasSuffix(l, ".htm"):
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return extractMainText(string(data)), nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

func extractTextFromPDF(path string) (string, error) {
	r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}

	reader, err := r.GetPlainText()
	if err != nil {
		return "", err
	}

	buf := bytes.NewBuffer(nil)
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func extractMainText(htmlStr string) string {
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return ""
	}

	var b strings.Builder
	var walk func(*html.Node, bool)
	walk = func(n *html.Node, skip bool) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				skip = true
			}
		}
		if n.Type == html.TextNode && !skip {
			t := strings.TrimSpace(n.Data)
			if t != "" {
				b.WriteString(t)
				b.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, skip)
		}
	}
	walk(doc, false)

	lines := strings.Split(b.String(), "\n")
	var filtered []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if len(l) > 1 {
			filtered = append(filtered, l)
		}
	}
	return strings.Join(filtered, "\n")
}

// strip invalid UTF-8 bytes before they reach Postgres (error 22021)
func sanitizeUTF8(s string) string {
	if s == "" || utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			s = s[1:]
			continue
		}
		b.WriteRune(r)
		s = s[size:]
	}
	return b.String()
}
