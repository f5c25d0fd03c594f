package model

import "time"

// DocumentType enumerates the recognized document kinds.
type DocumentType string

const (
	DocumentTypeContract     DocumentType = "contract"
	DocumentTypeInvoice      DocumentType = "invoice"
	DocumentTypeSOW          DocumentType = "sow"
	DocumentTypePaymentProof DocumentType = "payment_proof"
	DocumentTypeTPStudy      DocumentType = "tp_study"
	DocumentTypePurchaseOrder DocumentType = "purchase_order"
	DocumentTypeReceipt      DocumentType = "receipt"
)

// Document is append-only: a correction is a new Document row that
// supersedes a prior one via SupersedesDocID, never a rewrite.
type Document struct {
	DocID            string
	ProjectID        string
	Type             DocumentType
	HashSHA256       string
	UploadedAt       time.Time
	Metadata         map[string]any
	SupersedesDocID  string // empty when this document supersedes nothing
}

// DocumentFilter narrows a DocumentStore.List call.
type DocumentFilter struct {
	Type DocumentType // zero value means "any type"
}
