package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/0xcafe-io/iz"
	"github.com/blueclef/receiptify/internal/receipt"
	"github.com/blueclef/receiptify/logging"
)

const MAX_UPLOAD_BYTES = 10 << 20 // 10MB receipt image cap

type Api struct {
	Service *receipt.ReceiptTracker
}

func NewApi(service *receipt.ReceiptTracker) *Api {
	return &Api{
		Service: service,
	}
}

// CreateIdentityHandler returns the caller's identity token. A valid token
// in the Authorization header comes back unchanged; otherwise a fresh
// identity is generated and persisted.
func (api *Api) CreateIdentityHandler(r *iz.Request) iz.Responder {
	token := r.Header.Get("Authorization")
	if token != "" {
		if _, err := api.Service.ResolveIdentity(r.Context(), token); err == nil {
			resp := IdentityResponse{
				Message: "Identity already exists.",
				Token:   token,
			}
			return iz.Respond().Status(200).JSON(resp)
		}
	}

	newToken, err := api.Service.RegisterIdentity(r.Context())
	if err != nil {
		logging.Logger.Errorf("Failed to register identity: %v", err)
		msg := fmt.Sprintf("failed to create identity: %v", err)
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}

	resp := IdentityResponse{
		Message: "Identity created.",
		Token:   newToken,
	}
	return iz.Respond().Status(201).JSON(resp)
}

func (api *Api) DeleteIdentityHandler(r *iz.Request) iz.Responder {
	token := r.Header.Get("Authorization")
	if token == "" {
		return iz.Respond().Status(401).Text("authorization failed: Authorization header is required.")
	}

	identityId, err := api.Service.ResolveIdentity(r.Context(), token)
	if err != nil {
		msg := fmt.Sprintf("authorization failed: %s", err.Error())
		return iz.Respond().Status(401).Text(msg)
	}

	if r.URL.Query().Get("confirm") != "true" {
		return iz.Respond().Status(400).Text("identity removal requires confirmation: pass confirm=true")
	}

	if err := api.Service.RemoveIdentity(r.Context(), identityId); err != nil {
		msg := fmt.Sprintf("failed to remove identity: %v", err)
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}
	return iz.Respond().Status(200).Text("Identity removed.")
}

func (api *Api) ListExpensesHandler(r *iz.Request) iz.Responder {
	token := r.Header.Get("Authorization")
	if token == "" {
		return iz.Respond().Status(401).Text("authorization failed: Authorization header is required.")
	}

	identityId, err := api.Service.ResolveIdentity(r.Context(), token)
	if err != nil {
		msg := fmt.Sprintf("authorization failed: %s", err.Error())
		return iz.Respond().Status(401).Text(msg)
	}

	order := r.URL.Query().Get("order")

	list, err := api.Service.ListExpenses(r.Context(), identityId, order)
	if err != nil {
		logging.Logger.Errorf("Failed to list expenses: %v", err)
		msg := fmt.Sprintf("failed to load expenses: %v", err)
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}

	resp := ListExpensesResponse{
		Expenses: make([]ExpenseItem, 0, len(list.Records)),
		Order:    list.Order,
		Total:    list.Total,
		Symbol:   list.Symbol,
	}
	for _, record := range list.Records {
		resp.Expenses = append(resp.Expenses, ExpenseToHttp(record))
	}
	return iz.Respond().Status(200).JSON(resp)
}

// IngestExpenseHandler accepts a multipart receipt image and runs the full
// ingestion pipeline. Extraction round-trips are deliberately not serialized
// per identity; record order comes from the dispatch-time id.
func (api *Api) IngestExpenseHandler(r *iz.Request) iz.Responder {
	token := r.Header.Get("Authorization")
	if token == "" {
		return iz.Respond().Status(401).Text("authorization failed: Authorization header is required.")
	}

	identityId, err := api.Service.ResolveIdentity(r.Context(), token)
	if err != nil {
		msg := fmt.Sprintf("authorization failed: %s", err.Error())
		return iz.Respond().Status(401).Text(msg)
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return iz.Respond().Status(400).Text("invalid upload: an 'image' file part is required")
	}
	defer file.Close()

	if header.Size > MAX_UPLOAD_BYTES {
		msg := fmt.Sprintf("receipt image so large, maximum allowed size is: %d bytes", MAX_UPLOAD_BYTES)
		return iz.Respond().Status(400).Text(msg)
	}

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return iz.Respond().Status(400).Text("invalid upload: only image files are accepted")
	}

	image, err := io.ReadAll(io.LimitReader(file, MAX_UPLOAD_BYTES+1))
	if err != nil {
		logging.Logger.Errorf("Failed to read receipt upload: %v", err)
		return iz.Respond().Status(500).Text("Failed to process receipt, please try again.")
	}

	record, err := api.Service.IngestReceipt(r.Context(), identityId, image, contentType)
	if err != nil {
		logging.Logger.Errorf("Failed to ingest receipt: %v", err)
		return iz.Respond().Status(httpStatusFromError(err)).Text(err.Error())
	}

	resp := IngestResponse{
		Message: "Receipt processed successfully.",
		Expense: ExpenseToHttp(record),
	}
	return iz.Respond().Status(201).JSON(resp)
}

// DeleteExpenseHandler removes one record by id. The browser confirm()
// step becomes an explicit confirm=true query parameter.
func (api *Api) DeleteExpenseHandler(r *iz.Request) iz.Responder {
	token := r.Header.Get("Authorization")
	if token == "" {
		return iz.Respond().Status(401).Text("authorization failed: Authorization header is required.")
	}

	identityId, err := api.Service.ResolveIdentity(r.Context(), token)
	if err != nil {
		msg := fmt.Sprintf("authorization failed: %s", err.Error())
		return iz.Respond().Status(401).Text(msg)
	}

	recordId, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		msg := fmt.Sprintf("invalid expense id: %s", r.PathValue("id"))
		return iz.Respond().Status(400).Text(msg)
	}

	if r.URL.Query().Get("confirm") != "true" {
		return iz.Respond().Status(400).Text("expense removal requires confirmation: pass confirm=true")
	}

	if err := api.Service.DeleteExpense(r.Context(), identityId, recordId); err != nil {
		msg := fmt.Sprintf("failed to delete expense: %v", err)
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}
	return iz.Respond().Status(200).Text("Expense deleted.")
}

func (api *Api) BeginEditHandler(r *iz.Request) iz.Responder {
	token := r.Header.Get("Authorization")
	if token == "" {
		return iz.Respond().Status(401).Text("authorization failed: Authorization header is required.")
	}

	identityId, err := api.Service.ResolveIdentity(r.Context(), token)
	if err != nil {
		msg := fmt.Sprintf("authorization failed: %s", err.Error())
		return iz.Respond().Status(401).Text(msg)
	}

	recordId, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		msg := fmt.Sprintf("invalid expense id: %s", r.PathValue("id"))
		return iz.Respond().Status(400).Text(msg)
	}

	session, err := api.Service.BeginEdit(r.Context(), identityId, recordId)
	if err != nil {
		msg := fmt.Sprintf("failed to begin edit: %v", err)
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}
	return iz.Respond().Status(200).JSON(EditSessionToHttp(session))
}

func (api *Api) GetEditHandler(r *iz.Request) iz.Responder {
	token := r.Header.Get("Authorization")
	if token == "" {
		return iz.Respond().Status(401).Text("authorization failed: Authorization header is required.")
	}

	identityId, err := api.Service.ResolveIdentity(r.Context(), token)
	if err != nil {
		msg := fmt.Sprintf("authorization failed: %s", err.Error())
		return iz.Respond().Status(401).Text(msg)
	}

	session, err := api.Service.CurrentEdit(r.Context(), identityId)
	if err != nil {
		msg := fmt.Sprintf("failed to get edit session: %v", err)
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}
	return iz.Respond().Status(200).JSON(EditSessionToHttp(session))
}

func (api *Api) EditFieldHandler(r *iz.Request) iz.Responder {
	token := r.Header.Get("Authorization")
	if token == "" {
		return iz.Respond().Status(401).Text("authorization failed: Authorization header is required.")
	}

	identityId, err := api.Service.ResolveIdentity(r.Context(), token)
	if err != nil {
		msg := fmt.Sprintf("authorization failed: %s", err.Error())
		return iz.Respond().Status(401).Text(msg)
	}

	var req EditFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		msg := fmt.Sprintf("invalid request body: %s", err.Error())
		return iz.Respond().Status(400).Text(msg)
	}

	session, err := api.Service.EditField(r.Context(), identityId, req.Name, req.Value)
	if err != nil {
		msg := fmt.Sprintf("failed to edit field: %v", err)
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}
	return iz.Respond().Status(200).JSON(EditSessionToHttp(session))
}

func (api *Api) EditItemHandler(r *iz.Request) iz.Responder {
	token := r.Header.Get("Authorization")
	if token == "" {
		return iz.Respond().Status(401).Text("authorization failed: Authorization header is required.")
	}

	identityId, err := api.Service.ResolveIdentity(r.Context(), token)
	if err != nil {
		msg := fmt.Sprintf("authorization failed: %s", err.Error())
		return iz.Respond().Status(401).Text(msg)
	}

	var req EditItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		msg := fmt.Sprintf("invalid request body: %s", err.Error())
		return iz.Respond().Status(400).Text(msg)
	}

	session, err := api.Service.EditItem(r.Context(), identityId, req.Index, req.Name, req.Value)
	if err != nil {
		msg := fmt.Sprintf("failed to edit item: %v", err)
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}
	return iz.Respond().Status(200).JSON(EditSessionToHttp(session))
}

func (api *Api) AddItemHandler(r *iz.Request) iz.Responder {
	token := r.Header.Get("Authorization")
	if token == "" {
		return iz.Respond().Status(401).Text("authorization failed: Authorization header is required.")
	}

	identityId, err := api.Service.ResolveIdentity(r.Context(), token)
	if err != nil {
		msg := fmt.Sprintf("authorization failed: %s", err.Error())
		return iz.Respond().Status(401).Text(msg)
	}

	session, err := api.Service.AddItem(r.Context(), identityId)
	if err != nil {
		msg := fmt.Sprintf("failed to add item: %v", err)
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}
	return iz.Respond().Status(200).JSON(EditSessionToHttp(session))
}

func (api *Api) RemoveItemHandler(r *iz.Request) iz.Responder {
	token := r.Header.Get("Authorization")
	if token == "" {
		return iz.Respond().Status(401).Text("authorization failed: Authorization header is required.")
	}

	identityId, err := api.Service.ResolveIdentity(r.Context(), token)
	if err != nil {
		msg := fmt.Sprintf("authorization failed: %s", err.Error())
		return iz.Respond().Status(401).Text(msg)
	}

	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		msg := fmt.Sprintf("invalid item index: %s", r.PathValue("index"))
		return iz.Respond().Status(400).Text(msg)
	}

	session, err := api.Service.RemoveItem(r.Context(), identityId, index)
	if err != nil {
		msg := fmt.Sprintf("failed to remove item: %v", err)
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}
	return iz.Respond().Status(200).JSON(EditSessionToHttp(session))
}

func (api *Api) CommitEditHandler(r *iz.Request) iz.Responder {
	token := r.Header.Get("Authorization")
	if token == "" {
		return iz.Respond().Status(401).Text("authorization failed: Authorization header is required.")
	}

	identityId, err := api.Service.ResolveIdentity(r.Context(), token)
	if err != nil {
		msg := fmt.Sprintf("authorization failed: %s", err.Error())
		return iz.Respond().Status(401).Text(msg)
	}

	record, err := api.Service.CommitEdit(r.Context(), identityId)
	if err != nil {
		msg := fmt.Sprintf("failed to save expense: %v", err)
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}
	return iz.Respond().Status(200).JSON(ExpenseToHttp(record))
}

func (api *Api) CancelEditHandler(r *iz.Request) iz.Responder {
	token := r.Header.Get("Authorization")
	if token == "" {
		return iz.Respond().Status(401).Text("authorization failed: Authorization header is required.")
	}

	identityId, err := api.Service.ResolveIdentity(r.Context(), token)
	if err != nil {
		msg := fmt.Sprintf("authorization failed: %s", err.Error())
		return iz.Respond().Status(401).Text(msg)
	}

	if err := api.Service.CancelEdit(r.Context(), identityId); err != nil {
		msg := fmt.Sprintf("failed to cancel edit: %v", err)
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}
	return iz.Respond().Status(200).Text("Edit cancelled.")
}

// ExportExpensesHandler streams the identity's full snapshot, storage order.
func (api *Api) ExportExpensesHandler(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token == "" {
		http.Error(w, "authorization failed: Authorization header is required.", 401)
		return
	}

	identityId, err := api.Service.ResolveIdentity(r.Context(), token)
	if err != nil {
		http.Error(w, fmt.Sprintf("authorization failed: %s", err.Error()), 401)
		return
	}

	records, err := api.Service.ExportExpenses(r.Context(), identityId)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to export expenses: %v", err), httpStatusFromError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=expenses.json")
	if err := json.NewEncoder(w).Encode(records); err != nil {
		logging.Logger.Errorf("Failed to write export: %v", err)
	}
}
