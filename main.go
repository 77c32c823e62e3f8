package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/0xcafe-io/iz"
	"github.com/blueclef/receiptify/api"
	"github.com/blueclef/receiptify/internal/receipt"
	"github.com/blueclef/receiptify/internal/storage"
	"github.com/blueclef/receiptify/internal/vision"
	"github.com/blueclef/receiptify/logging"
	"github.com/rs/cors"
)

var rt receipt.ReceiptTracker // Global

var corsConf = cors.New(cors.Options{
	AllowedOrigins:   []string{"*"},
	AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	AllowedHeaders:   []string{"Authorization", "Content-Type"},
	AllowCredentials: true,
})

func main() {
	if err := logging.Init("debug"); err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		return
	}

	logging.Logger.Info("application starting...")

	storageInstance, err := buildStorage()
	if err != nil {
		logging.Logger.Errorf("failed to initialize storage: %v", err)
		return
	}

	extractor := buildExtractor()

	rt = receipt.NewReceiptTracker(storageInstance, extractor)

	server := http.NewServeMux()
	traceMiddleware := api.TraceMiddleware
	api := api.NewApi(&rt)

	// IDENTITY ENDPOINTS.
	server.HandleFunc("POST /api/identity", iz.Bind(api.CreateIdentityHandler))   // Issue (or echo) identity token
	server.HandleFunc("DELETE /api/identity", iz.Bind(api.DeleteIdentityHandler)) // Remove identity and its expenses

	// EXPENSE ENDPOINTS.
	server.HandleFunc("GET /api/expenses", iz.Bind(api.ListExpensesHandler))           // Sorted expense list + aggregate total
	server.Handle("POST /api/expenses", iz.Bind(api.IngestExpenseHandler))             // Take receipt image, extract an expense record
	server.HandleFunc("DELETE /api/expenses/{id}", iz.Bind(api.DeleteExpenseHandler))  // Delete expense (confirm=true required)
	server.HandleFunc("GET /api/expenses/export", api.ExportExpensesHandler)           // Download full expense snapshot

	// EDIT SESSION ENDPOINTS.
	server.HandleFunc("POST /api/expenses/{id}/edit", iz.Bind(api.BeginEditHandler))      // Open editing buffer for one expense
	server.HandleFunc("GET /api/edit", iz.Bind(api.GetEditHandler))                       // Current editing buffer
	server.HandleFunc("POST /api/edit/field", iz.Bind(api.EditFieldHandler))              // Update scalar field in buffer
	server.HandleFunc("POST /api/edit/item", iz.Bind(api.EditItemHandler))                // Update one line item in buffer
	server.HandleFunc("POST /api/edit/item/add", iz.Bind(api.AddItemHandler))             // Append blank line item to buffer
	server.HandleFunc("DELETE /api/edit/item/{index}", iz.Bind(api.RemoveItemHandler))    // Remove line item from buffer
	server.HandleFunc("POST /api/edit/commit", iz.Bind(api.CommitEditHandler))            // Replace canonical record with buffer
	server.HandleFunc("POST /api/edit/cancel", iz.Bind(api.CancelEditHandler))            // Discard buffer

	port := os.Getenv("APP_PORT")
	if port == "" {
		logging.Logger.Info("APP_PORT environment variable not set, using default port 8080")
		port = "8080"
	}
	fmt.Println("Starting server on port: ", port)
	handler := corsConf.Handler(traceMiddleware(server))
	err = http.ListenAndServe(":"+port, handler) // Start the server
	if err != nil {
		logging.Logger.Errorf("failed to start server: %v", err)
		return
	}
}

// buildStorage picks the persistence backend from the environment;
// default is MySQL, STORAGE_BACKEND=memory keeps everything in-process.
func buildStorage() (receipt.Storage, error) {
	if os.Getenv("STORAGE_BACKEND") == "memory" {
		logging.Logger.Info("using in-memory storage backend")
		return storage.NewInMemoryStorage(), nil
	}

	db, err := storage.Init()
	if err != nil {
		return nil, err
	}
	return storage.NewMySQLStorage(db), nil
}

// buildExtractor wires the vision model when a key is configured and falls
// back to OCR text heuristics otherwise.
func buildExtractor() receipt.Extractor {
	if apiKey := os.Getenv("VISION_API_KEY"); apiKey != "" {
		logging.Logger.Info("using vision model extractor")
		return vision.NewModelExtractor(apiKey, os.Getenv("VISION_BASE_URL"), os.Getenv("VISION_MODEL"))
	}

	logging.Logger.Info("VISION_API_KEY not set, falling back to OCR extraction")
	return vision.NewOCRSpaceExtractor(os.Getenv("OCR_SPACE_API_KEY"))
}
