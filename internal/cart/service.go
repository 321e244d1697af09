package cart

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-bundles/internal/bundle"
	"github.com/noah-isme/toko-bundles/internal/cartattr"
	"github.com/noah-isme/toko-bundles/internal/common"
	"github.com/noah-isme/toko-bundles/internal/obs"
	"github.com/noah-isme/toko-bundles/internal/storefront"
)

const (
	mutationCreate = "cart_create"
	mutationAdd    = "cart_lines_add"
)

type mutator interface {
	CartCreate(ctx context.Context, lines []storefront.CartLineInput) (*storefront.CartMutationResult, error)
	CartLinesAdd(ctx context.Context, cartID string, lines []storefront.CartLineInput) (*storefront.CartMutationResult, error)
}

// AddResult is the outcome of AddBundleToCart. A rejected mutation is a
// result with Success false, not an error.
type AddResult struct {
	Success         bool                    `json:"success"`
	Cart            json.RawMessage         `json:"cart,omitempty"`
	Error           string                  `json:"error,omitempty"`
	Code            string                  `json:"code,omitempty"`
	FailedComponent *common.ComponentDetail `json:"failedComponent,omitempty"`
}

func failure(code, message string) *AddResult {
	if message == "" {
		message = common.DefaultMessage(code)
	}
	return &AddResult{Success: false, Code: code, Error: message}
}

// Service submits bundle lines to the storefront cart.
type Service struct {
	Storefront mutator
	Logger     *zerolog.Logger
}

// NewService builds a Service.
func NewService(sf mutator, logger *zerolog.Logger) *Service {
	return &Service{Storefront: sf, Logger: logger}
}

func (s *Service) logger() *zerolog.Logger {
	if s != nil && s.Logger != nil {
		return s.Logger
	}
	l := zerolog.Nop()
	return &l
}

// AddBundleToCart validates mix-and-match selections, builds the tagged lines
// and issues cartLinesAdd when a cart id is given, cartCreate otherwise.
// Validation failures, GraphQL errors and user errors come back as a failed
// result. Transport, rate-limit and configuration faults are returned as
// errors.
func (s *Service) AddBundleToCart(ctx context.Context, def *bundle.Definition, in Input) (*AddResult, error) {
	if def == nil {
		return nil, common.NewError(common.CodeBundleNotFound, "", nil)
	}
	if def.Type == bundle.TypeMixAndMatch {
		if v := bundle.ValidateSelection(def, in.Selections); !v.Valid {
			obs.ObserveCartMutation("validate", "rejected")
			return failure(v.Code, v.Error), nil
		}
	}
	if v := bundle.ValidateResolvable(def, in.Selections); !v.Valid {
		obs.ObserveCartMutation("validate", "rejected")
		return failure(v.Code, v.Error), nil
	}
	if s == nil || s.Storefront == nil {
		return nil, common.NewError(common.CodeInvalidConfig, "storefront client is required", nil)
	}

	ctx, span := obs.StartSpan(ctx, "cart.AddBundle", def.ID)
	defer span.End()

	lines := BuildBundleCartLines(def, in)
	if len(lines) == 0 {
		return failure(common.CodeSelectionIncomplete, ""), nil
	}

	mutation := mutationCreate
	var (
		res *storefront.CartMutationResult
		err error
	)
	if in.CartID != "" {
		mutation = mutationAdd
		res, err = s.Storefront.CartLinesAdd(ctx, in.CartID, lines)
	} else {
		res, err = s.Storefront.CartCreate(ctx, lines)
	}
	if err != nil {
		span.RecordError(err)
		var gqlErrs storefront.GraphQLErrors
		if errors.As(err, &gqlErrs) {
			obs.ObserveCartMutation(mutation, "graphql_error")
			s.logger().Warn().Err(err).Str("bundle_id", def.ID).Str("mutation", mutation).Msg("cart_mutation_failed")
			msg := ""
			if len(gqlErrs) > 0 {
				msg = gqlErrs[0].Message
			}
			return failure(common.CodeCartError, msg), nil
		}
		obs.ObserveCartMutation(mutation, "error")
		return nil, err
	}

	if len(res.UserErrors) > 0 {
		obs.ObserveCartMutation(mutation, "rejected")
		out := rejection(res.UserErrors[0], lines)
		s.logger().Warn().
			Str("bundle_id", def.ID).
			Str("mutation", mutation).
			Str("reason", out.Error).
			Msg("cart_mutation_rejected")
		return out, nil
	}

	obs.ObserveCartMutation(mutation, "ok")
	return &AddResult{Success: true, Cart: res.Cart}, nil
}

// rejection maps the first user error. A field path like
// ["lines", "2", "quantity"] attributes the failure to submitted line 2.
func rejection(ue storefront.UserError, lines []storefront.CartLineInput) *AddResult {
	out := failure(common.CodeCartError, ue.Message)
	if len(ue.Field) < 2 {
		return out
	}
	idx, err := strconv.Atoi(ue.Field[1])
	if err != nil || idx < 0 || idx >= len(lines) {
		return out
	}
	line := lines[idx]
	productID, _ := cartattr.Lookup(line.Attributes, cartattr.KeyComponentProductID)
	out.FailedComponent = &common.ComponentDetail{
		ProductID: productID,
		VariantID: line.MerchandiseID,
		Reason:    ue.Message,
	}
	return out
}
