package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"invest-guru/internal/chat"
	"invest-guru/internal/chromemdb"
	"invest-guru/internal/chunker"
	"invest-guru/internal/config"
	"invest-guru/internal/db"
	"invest-guru/internal/embedding"
	"invest-guru/internal/helper"
	"invest-guru/internal/indexer"
	"invest-guru/internal/llmservice"
	"invest-guru/internal/models"
	"invest-guru/internal/rag"
)

const (
	configFilePath = "./configs/config.yaml"
	envFilePath    = ".env"
	clearCommand   = "/limpar"
	exitCommand    = "/sair"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	envPath := flag.String("env", envFilePath, "Path to the .env file with secrets")
	upload := flag.String("upload", "", "Copy a PDF into the PDFs directory and index it")
	filePath := flag.String("file", "", "Path to the document file to index")
	dir := flag.String("dir", "", "Index every document in a directory")
	reindex := flag.Bool("reindex", false, "Clear the index and rebuild it from the PDFs directory")
	deleteSource := flag.String("delete", "", "Remove every chunk of a source file name")
	list := flag.Bool("list", false, "List indexed sources")
	status := flag.Bool("status", false, "Show PDFs and index status")
	query := flag.String("query", "", "Query to be answered")
	chatMode := flag.Bool("chat", false, "Start an interactive conversation")
	module := flag.String("module", "", "Restrict retrieval to a module label, e.g. \"Módulo 2\"")
	dryRun := flag.Bool("dry-run", false, "Dry run, extract and chunk without saving to the index")
	exportPath := flag.String("export", "", "Export the chromem collection to a file")
	importPath := flag.String("import", "", "Import the chromem collection from a file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath, *envPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	ctx := context.Background()

	if *query != "" && *chatMode {
		log.Fatal().Msg("Please provide either -query or -chat, but not both")
	}

	switch {
	case *status:
		showStatus(ctx, cfg)
	case *list:
		listSources(ctx, cfg)
	case *deleteSource != "":
		deleteBySource(ctx, cfg, *deleteSource)
	case *exportPath != "":
		exportIndex(ctx, cfg, *exportPath)
	case *importPath != "":
		importIndex(ctx, cfg, *importPath)
	case *upload != "":
		uploadFile(ctx, cfg, *upload)
	case *filePath != "":
		if *dryRun {
			previewFile(ctx, cfg, *filePath)
			return
		}
		indexFile(ctx, cfg, *filePath)
	case *reindex:
		indexDirectory(ctx, cfg, cfg.Paths.PDFDir, true)
	case *dir != "":
		indexDirectory(ctx, cfg, *dir, false)
	case *query != "":
		answerQuery(ctx, cfg, *query, *module)
	case *chatMode:
		runChat(ctx, cfg, *module)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// openStore opens the configured vector store. With mustExist set a store
// with nothing ingested yields *models.IndexNotFoundError.
func openStore(ctx context.Context, cfg *config.Config, mustExist bool) (indexer.VectorStore, func(), error) {
	backend, err := config.ParseBackend(cfg.VectorStore.Backend)
	if err != nil {
		return nil, nil, err
	}

	if backend == config.BackendPgvector {
		store, err := db.NewStore(ctx, &cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		closer := func() { store.Close() }
		if mustExist {
			n, err := store.Count(ctx)
			if err != nil {
				closer()
				return nil, nil, err
			}
			if n == 0 {
				closer()
				return nil, nil, &models.IndexNotFoundError{Path: "database table chunks"}
			}
		}
		return store, closer, nil
	}

	manager, err := openChromem(cfg, mustExist)
	if err != nil {
		return nil, nil, err
	}
	return manager, func() {}, nil
}

func openChromem(cfg *config.Config, mustExist bool) (*chromemdb.VectorDBManager, error) {
	vs := cfg.VectorStore
	if mustExist {
		return chromemdb.OpenExisting(cfg.Paths.IndexDir, vs.Collection, vs.Compress, cfg.RAG.EncryptionKey)
	}
	return chromemdb.NewVectorDBManager(cfg.Paths.IndexDir, vs.Collection, false, vs.Compress, cfg.RAG.EncryptionKey)
}

func newEmbedder(ctx context.Context, cfg *config.Config) (embeddings.Embedder, func()) {
	spec, err := cfg.Embedding()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid embedding config")
	}
	embedder, closer, err := embedding.NewEmbedder(ctx, spec)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}
	return embedder, func() {
		if closer != nil {
			closer()
		}
	}
}

func newIndexer(ctx context.Context, cfg *config.Config, mustExist bool) (*indexer.Indexer, func()) {
	store, closeStore, err := openStore(ctx, cfg, mustExist)
	if err != nil {
		var notFound *models.IndexNotFoundError
		if errors.As(err, &notFound) {
			fmt.Println(warnStyle.Render("Nenhum índice encontrado. Adicione PDFs e processe-os primeiro."))
			os.Exit(1)
		}
		log.Fatal().Err(err).Msg("Error opening vector store")
	}

	embedder, closeEmbedder := newEmbedder(ctx, cfg)

	strategy, err := config.ParseChunkStrategy(cfg.RAG.ChunkStrategy)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid chunk strategy")
	}
	ch, err := chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap, strategy)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating chunker")
	}

	ix := indexer.New(store, embedder, ch,
		indexer.WithReplaceExisting(cfg.ReplaceOnIngest()),
		indexer.WithExtensions(cfg.Ingest.Extensions...),
	)
	return ix, func() {
		closeEmbedder()
		closeStore()
	}
}

func newChain(ctx context.Context, cfg *config.Config, ix *indexer.Indexer, module string) (*rag.Chain, func()) {
	spec, err := cfg.Chat()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid chat model config")
	}
	generator, closer, err := llmservice.NewGenerator(ctx, spec)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing chat model")
	}

	opts := []rag.Option{rag.WithK(cfg.RAG.TopK)}
	if module != "" {
		opts = append(opts, rag.WithFilter(map[string]string{models.MetaModule: module}))
	}
	return rag.NewChain(generator, ix, opts...), func() {
		if closer != nil {
			closer()
		}
	}
}

func previewFile(ctx context.Context, cfg *config.Config, filePath string) {
	strategy, _ := config.ParseChunkStrategy(cfg.RAG.ChunkStrategy)
	ch, err := chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap, strategy)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating chunker")
	}
	ix := indexer.New(nil, nil, ch)

	chunks, err := ix.Prepare(filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error parsing document")
	}
	for _, c := range chunks {
		log.Info().Str("source", c.Metadata.Source).Int("page", c.Metadata.Page).Str("module", c.Metadata.Module).Int("chunk", c.Index).Int("length", len([]rune(c.Content))).Msg("Chunk")
	}
	helper.PrettyPrint(chunks)
}

func indexFile(ctx context.Context, cfg *config.Config, filePath string) {
	ix, closer := newIndexer(ctx, cfg, false)
	defer closer()

	n, err := ix.ProcessPDF(ctx, filePath)
	if err != nil {
		log.Fatal().Err(err).Str("file", filePath).Msg("Error processing document")
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("✅ %s processado: %d chunks", filepath.Base(filePath), n)))
}

func uploadFile(ctx context.Context, cfg *config.Config, filePath string) {
	f, err := os.Open(filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening upload")
	}
	defer f.Close()

	saved, err := helper.SaveUpload(cfg.Paths.PDFDir, filepath.Base(filePath), f, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("Error saving upload")
	}
	log.Info().Str("file", saved).Msg("Saved upload")
	indexFile(ctx, cfg, saved)
}

func indexDirectory(ctx context.Context, cfg *config.Config, dir string, fromScratch bool) {
	ix, closer := newIndexer(ctx, cfg, false)
	defer closer()

	var results map[string]int
	var err error
	if fromScratch {
		results, err = ix.Reindex(ctx, dir)
	} else {
		results, err = ix.ProcessDirectory(ctx, dir)
	}

	var batchErr *indexer.BatchError
	if err != nil && !errors.As(err, &batchErr) {
		log.Fatal().Err(err).Str("dir", dir).Msg("Error processing directory")
	}
	fmt.Println(renderResults(results, batchErr))
}

func deleteBySource(ctx context.Context, cfg *config.Config, name string) {
	ix, closer := newIndexer(ctx, cfg, true)
	defer closer()

	n, err := ix.DeleteBySource(ctx, name)
	if err != nil {
		log.Fatal().Err(err).Str("source", name).Msg("Error deleting source")
	}
	if n == 0 {
		fmt.Println(warnStyle.Render(fmt.Sprintf("Nenhum chunk encontrado para %s", name)))
		return
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("🗑️ %s removido: %d chunks", name, n)))
}

func listSources(ctx context.Context, cfg *config.Config) {
	ix, closer := newIndexer(ctx, cfg, true)
	defer closer()

	sources, err := ix.ListSources(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Error listing sources")
	}
	fmt.Println(renderSources(sources))
}

func showStatus(ctx context.Context, cfg *config.Config) {
	hasPDFs := helper.DirHasFiles(cfg.Paths.PDFDir, cfg.Ingest.Extensions...)

	chunks := 0
	store, closer, err := openStore(ctx, cfg, true)
	if err == nil {
		defer closer()
		chunks, err = store.Count(ctx)
	}
	var notFound *models.IndexNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		log.Fatal().Err(err).Msg("Error reading index status")
	}
	fmt.Println(renderStatus(cfg, hasPDFs, chunks))
}

func exportIndex(ctx context.Context, cfg *config.Config, filePath string) {
	manager := chromemOnly(cfg, true)
	if err := manager.Export(ctx, filePath); err != nil {
		log.Fatal().Err(err).Msg("Error exporting index")
	}
	fmt.Println(successStyle.Render("Índice exportado para " + filePath))
}

func importIndex(ctx context.Context, cfg *config.Config, filePath string) {
	manager := chromemOnly(cfg, false)
	if err := manager.Import(ctx, filePath); err != nil {
		log.Fatal().Err(err).Msg("Error importing index")
	}

	// the imported vectors carry their dimension
	chunks, err := manager.Fetch(ctx, nil)
	if err == nil && len(chunks) > 0 {
		err = manager.SetDimension(len(chunks[0].Embedding))
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Error reading imported index")
	}
	n, _ := manager.Count(ctx)
	fmt.Println(successStyle.Render(fmt.Sprintf("Índice importado: %d chunks", n)))
}

func chromemOnly(cfg *config.Config, mustExist bool) *chromemdb.VectorDBManager {
	if backend, _ := config.ParseBackend(cfg.VectorStore.Backend); backend != config.BackendChromem {
		log.Fatal().Str("backend", cfg.VectorStore.Backend).Msg("Export and import need the chromem backend")
	}
	manager, err := openChromem(cfg, mustExist)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening vector store")
	}
	return manager
}

func answerQuery(ctx context.Context, cfg *config.Config, query, module string) {
	ix, closeIndexer := newIndexer(ctx, cfg, true)
	defer closeIndexer()
	chain, closeChain := newChain(ctx, cfg, ix, module)
	defer closeChain()

	session := chat.NewSession(chain)
	turn, answer, err := session.Ask(ctx, query)
	fmt.Println(renderAnswer(query, turn, answer))
	if err != nil {
		os.Exit(1)
	}
}

func runChat(ctx context.Context, cfg *config.Config, module string) {
	ix, closeIndexer := newIndexer(ctx, cfg, true)
	defer closeIndexer()
	chain, closeChain := newChain(ctx, cfg, ix, module)
	defer closeChain()

	session := chat.NewSession(chain)
	fmt.Println(titleStyle.Render("💬 Invest Guru"))
	fmt.Println(hintStyle.Render(fmt.Sprintf("Digite sua pergunta. %s apaga o histórico, %s encerra.", clearCommand, exitCommand)))

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(promptStyle.Render("> "))
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		switch question {
		case "":
			continue
		case exitCommand:
			return
		case clearCommand:
			session.Clear()
			fmt.Println(hintStyle.Render("Histórico apagado."))
			continue
		}

		turn, answer, _ := session.Ask(ctx, question)
		fmt.Println(renderAnswer(question, turn, answer))
	}
	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("Error reading input")
	}
}
