package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

func newValidator() *validator.Validate {
	validate := validator.New()

	_ = validate.RegisterValidation("decimal", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && !d.IsNegative()
	})

	return validate
}

// decodeAndValidate reads a JSON body into req and validates it. On failure
// the response has already been written.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, validate *validator.Validate, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "Malformed request body: "+err.Error())
		return false
	}

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeError(w, http.StatusBadRequest, "invalid", err.Error())
			return false
		}
		var details []string
		for _, fe := range verrs {
			details = append(details, "Field '"+fe.Field()+"' failed on the '"+fe.Tag()+"' tag.")
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Status:  "invalid",
			Error:   "Validation failed",
			Details: details,
		})
		return false
	}
	return true
}
