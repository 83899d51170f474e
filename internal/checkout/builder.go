package checkout

import (
	"fmt"
	"reflect"
	"strings"

	domainErrors "github.com/burgl/checkout/internal/domain/errors"
	"github.com/burgl/checkout/internal/domain/transaction"
	"github.com/go-playground/validator/v10"
)

// pixMethod is the only payment method this flow supports; whatever casing
// the storefront sends is normalized to it.
const pixMethod = "PIX"

const placeholderEmailDomain = "@temp.com"

// OrderInput is the loosely-typed payload the storefront posts. Only the
// six required top-level fields are validated here; everything else is
// normalized by BuildRequest.
type OrderInput struct {
	ExternalID    string         `json:"external_id" validate:"required"`
	TotalAmount   float64        `json:"total_amount" validate:"required"`
	PaymentMethod string         `json:"payment_method" validate:"required"`
	WebhookURL    string         `json:"webhook_url" validate:"required"`
	Items         []ItemInput    `json:"items" validate:"required"`
	Customer      *CustomerInput `json:"customer" validate:"required"`
}

type CustomerInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Document string `json:"document"`
}

// ItemInput accepts both the storefront shapes seen in the wild: the order
// form sends name, the cart editor sends title.
type ItemInput struct {
	Name        string  `json:"name"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	IsPhysical  bool    `json:"is_physical"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report json names so validation errors match the wire contract.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// BuildRequest normalizes a raw order into the gateway's transaction schema.
// clientIP is carried to the gateway; pass "" when unknown.
func BuildRequest(in *OrderInput, clientIP string) (*transaction.Request, error) {
	if in == nil {
		return nil, domainErrors.MissingField("body")
	}
	if err := validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if ok := asValidationErrors(err, &fieldErrs); ok && len(fieldErrs) > 0 {
			return nil, domainErrors.MissingField(fieldErrs[0].Field())
		}
		return nil, domainErrors.NewValidationError("body", err.Error())
	}
	if in.TotalAmount <= 0 {
		return nil, domainErrors.NewValidationError("total_amount", "total_amount must be greater than zero")
	}

	customer, err := buildCustomer(in.Customer)
	if err != nil {
		return nil, err
	}

	items, err := buildItems(in.Items)
	if err != nil {
		return nil, err
	}

	if clientIP == "" {
		clientIP = "127.0.0.1"
	}

	return &transaction.Request{
		ExternalID:    in.ExternalID,
		TotalAmount:   in.TotalAmount,
		PaymentMethod: pixMethod,
		WebhookURL:    in.WebhookURL,
		IP:            clientIP,
		Customer:      customer,
		Items:         items,
	}, nil
}

func buildCustomer(in *CustomerInput) (transaction.Customer, error) {
	phone := digitsOnly(in.Phone)

	email := strings.TrimSpace(in.Email)
	if email == "" {
		// The storefront form collects no email; the gateway requires one.
		email = phone + placeholderEmailDomain
	}

	customer := transaction.Customer{
		Name:  strings.TrimSpace(in.Name),
		Email: email,
		Phone: phone,
	}

	// document_type is always derived from the cleaned digits, never taken
	// from input: <= 11 digits is a CPF, anything longer a CNPJ. An empty
	// document is omitted entirely.
	if document := digitsOnly(in.Document); document != "" {
		customer.Document = document
		customer.DocumentType = "CPF"
		if len(document) > 11 {
			customer.DocumentType = "CNPJ"
		}
	}

	return customer, nil
}

func buildItems(in []ItemInput) ([]transaction.Item, error) {
	items := make([]transaction.Item, 0, len(in))
	for i, it := range in {
		if it.Price <= 0 {
			return nil, domainErrors.NewValidationError("items",
				fmt.Sprintf("item %d: price must be greater than zero", i+1))
		}

		title := firstNonEmpty(it.Title, it.Name, fmt.Sprintf("Item %d", i+1))
		description := firstNonEmpty(it.Description, it.Name, title)

		quantity := it.Quantity
		if quantity < 1 {
			quantity = 1
		}

		items = append(items, transaction.Item{
			// Positional, 1-based; input ids are ignored.
			ID:          fmt.Sprintf("item_%d", i+1),
			Title:       title,
			Description: description,
			Quantity:    quantity,
			Price:       it.Price,
			IsPhysical:  it.IsPhysical,
		})
	}
	return items, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return false
	}
	*target = ve
	return true
}
