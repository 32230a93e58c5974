package services

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/chatcart-io/chatcart-backend/internal/apperrors"
	"github.com/chatcart-io/chatcart-backend/internal/models"
	"github.com/chatcart-io/chatcart-backend/internal/storage"
)

// InboundMessage is a normalized customer message handed to the engine by
// the webhook gateway.
type InboundMessage struct {
	ProviderMessageID string
	From              string
	Name              string
	Type              string
	Body              string
	Timestamp         time.Time
}

// ConversationEngine drives the per-conversation step state machine. It
// owns session context and cart mutation, prompts through the messaging
// gateway and hands completed carts to the order and payment services.
type ConversationEngine struct {
	store     storage.Store
	catalog   Catalog
	messenger Messenger
	orders    *OrderService
	payments  *PaymentService

	sessionTTL  time.Duration
	maxListSize int
}

// NewConversationEngine creates the engine with its collaborators injected.
func NewConversationEngine(
	store storage.Store,
	catalog Catalog,
	messenger Messenger,
	orders *OrderService,
	payments *PaymentService,
) *ConversationEngine {
	return &ConversationEngine{
		store:       store,
		catalog:     catalog,
		messenger:   messenger,
		orders:      orders,
		payments:    payments,
		sessionTTL:  30 * time.Minute,
		maxListSize: 10,
	}
}

// HandleInbound processes one deduplicated customer message. Session
// mutation uses an optimistic version check; on conflict with a racing
// delivery the message is reprocessed against the fresh session.
func (e *ConversationEngine) HandleInbound(tenantID string, msg *InboundMessage) error {
	tenant, err := e.store.GetTenant(tenantID)
	if err != nil {
		return err
	}

	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		session, err := e.loadOrCreateSession(tenant, msg)
		if err != nil {
			return err
		}

		replies, mutated, err := e.handleStep(tenant, session, strings.TrimSpace(msg.Body))
		if err != nil {
			return err
		}

		if mutated {
			session.LastMessageAt = msg.Timestamp
			if session.LastMessageAt.IsZero() {
				session.LastMessageAt = time.Now()
			}
			session.ExpiresAt = session.LastMessageAt.Add(e.sessionTTL)

			if err := e.store.UpdateSession(session); err != nil {
				if err == storage.ErrVersionConflict {
					log.Printf("🔁 Session conflict for %s (attempt %d), reprocessing", msg.From, attempt)
					continue
				}
				return err
			}

			// Checkout side effects run only after the transition into the
			// checkout step has won the version check. A conflicting
			// delivery reprocesses against a session already out of cart,
			// so one checkout message can never materialize two orders.
			if session.CurrentStep == models.StepCheckout {
				checkoutReplies, err := e.finalizeCheckout(tenant, session)
				if err != nil {
					return err
				}
				replies = append(replies, checkoutReplies...)
			}
		}

		e.deliver(tenant.ID, msg.From, replies)
		return nil
	}

	return fmt.Errorf("session for %s kept conflicting after %d attempts", msg.From, maxAttempts)
}

func (e *ConversationEngine) loadOrCreateSession(tenant *models.Tenant, msg *InboundMessage) (*models.ConversationSession, error) {
	session, err := e.store.GetSession(tenant.ID, msg.From)
	if err == nil && !session.Expired(time.Now()) {
		if msg.Name != "" && session.CustomerName == "" {
			session.CustomerName = msg.Name
		}
		return session, nil
	}

	if err == nil {
		// Expired session: drop it and start over at welcome.
		if derr := e.store.DeleteSession(session.ID); derr != nil {
			log.Printf("⚠️  Failed to delete expired session %s: %v", session.ID, derr)
		}
	} else if !apperrors.IsNotFound(err) {
		return nil, err
	}

	now := time.Now()
	session = &models.ConversationSession{
		TenantID:      tenant.ID,
		CustomerPhone: msg.From,
		CustomerName:  msg.Name,
		CurrentStep:   models.StepWelcome,
		LastMessageAt: now,
		ExpiresAt:     now.Add(e.sessionTTL),
	}
	if err := e.store.CreateSession(session); err != nil {
		// A racing delivery may have created it first; reload.
		if existing, gerr := e.store.GetSession(tenant.ID, msg.From); gerr == nil {
			return existing, nil
		}
		return nil, err
	}
	return session, nil
}

// handleStep dispatches the message to the handler for the session's
// current step. It returns the replies to send and whether the session was
// mutated (payment-pending replies mutate nothing).
func (e *ConversationEngine) handleStep(tenant *models.Tenant, session *models.ConversationSession, input string) ([]string, bool, error) {
	switch session.CurrentStep {
	case models.StepWelcome:
		replies, err := e.handleWelcome(tenant, session)
		return replies, true, err

	case models.StepCategorySelect:
		return e.handleCategorySelection(tenant, session, input)

	case models.StepProductSelect:
		return e.handleProductSelection(tenant, session, input)

	case models.StepVariantSelect:
		return e.handleVariantSelection(tenant, session, input)

	case models.StepCart:
		return e.handleCartMenu(tenant, session, input)

	case models.StepCheckout, models.StepCompleted:
		// Awaiting payment: static reply, no state mutation.
		return []string{"⏳ Your order is awaiting payment. We'll confirm as soon as it arrives!"}, false, nil

	default:
		// Unknown or missing step always resets to welcome.
		log.Printf("⚠️  Unknown step %q for session %s, resetting to welcome", session.CurrentStep, session.ID)
		e.transition(session, models.StepWelcome)
		replies, err := e.handleWelcome(tenant, session)
		return replies, true, err
	}
}

func (e *ConversationEngine) handleWelcome(tenant *models.Tenant, session *models.ConversationSession) ([]string, error) {
	greeting := tenant.Greeting
	if greeting == "" {
		greeting = fmt.Sprintf("👋 Welcome to %s! Let's get your order started.", tenant.Name)
	}

	listReply, browse, err := e.renderCategories(tenant)
	if err != nil {
		return nil, err
	}
	if browse == nil {
		// Empty catalog: apologize and stay in welcome.
		return []string{greeting, "😔 We're not taking orders right now. Please check back later!"}, nil
	}

	session.Context = models.StepContext{Data: *browse}
	e.transition(session, models.StepCategorySelect)

	return []string{greeting, listReply}, nil
}

func (e *ConversationEngine) handleCategorySelection(tenant *models.Tenant, session *models.ConversationSession, input string) ([]string, bool, error) {
	browse, ok := session.Context.Data.(models.CategoryBrowse)
	if !ok {
		return e.resetToWelcome(tenant, session)
	}

	selected := matchCategory(browse.Categories, input)
	if selected == nil {
		return []string{fmt.Sprintf("🤔 I didn't catch that. Reply with a number between 1 and %d, or type a category name.", len(browse.Categories))}, true, nil
	}

	products, err := e.catalog.Products(tenant.ID, selected.ID)
	if err != nil {
		return nil, false, err
	}
	if len(products) == 0 {
		return []string{fmt.Sprintf("😔 No items available in %s right now. Please pick another category.", selected.Name)}, true, nil
	}
	if len(products) > e.maxListSize {
		products = products[:e.maxListSize]
	}

	refs := make([]models.ProductRef, 0, len(products))
	var sb strings.Builder
	fmt.Fprintf(&sb, "🛍️ *%s*\nReply with a number to choose:\n\n", selected.Name)
	for i, product := range products {
		refs = append(refs, models.ProductRef{ID: product.ID, Name: product.Name, BasePrice: product.BasePrice})
		fmt.Fprintf(&sb, "%d. %s - %s\n", i+1, product.Name, formatMoney(product.BasePrice, product.Currency))
	}

	session.Context = models.StepContext{Data: models.ProductBrowse{Category: *selected, Products: refs}}
	e.transition(session, models.StepProductSelect)

	return []string{sb.String()}, true, nil
}

func (e *ConversationEngine) handleProductSelection(tenant *models.Tenant, session *models.ConversationSession, input string) ([]string, bool, error) {
	browse, ok := session.Context.Data.(models.ProductBrowse)
	if !ok {
		return e.resetToWelcome(tenant, session)
	}

	idx, ok := parseIndex(input, len(browse.Products))
	if !ok {
		return []string{fmt.Sprintf("🤔 Please reply with a number between 1 and %d.", len(browse.Products))}, true, nil
	}

	ref := browse.Products[idx]
	product, err := e.catalog.Product(tenant.ID, ref.ID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return []string{"😔 That item just became unavailable. Please pick another."}, true, nil
		}
		return nil, false, err
	}

	if len(product.VariantGroups) > 0 {
		session.Context = models.StepContext{Data: models.VariantSelect{
			Category:    browse.Category,
			ProductID:   product.ID,
			ProductName: product.Name,
			GroupCursor: 0,
		}}
		e.transition(session, models.StepVariantSelect)
		return []string{renderVariantGroup(product.Name, &product.VariantGroups[0])}, true, nil
	}

	e.addCartLine(session, product, nil)
	session.Context = models.StepContext{}
	e.transition(session, models.StepCart)
	return []string{e.renderCart(session)}, true, nil
}

func (e *ConversationEngine) handleVariantSelection(tenant *models.Tenant, session *models.ConversationSession, input string) ([]string, bool, error) {
	sel, ok := session.Context.Data.(models.VariantSelect)
	if !ok {
		return e.resetToWelcome(tenant, session)
	}

	product, err := e.catalog.Product(tenant.ID, sel.ProductID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return e.resetToWelcome(tenant, session)
		}
		return nil, false, err
	}
	if sel.GroupCursor < 0 || sel.GroupCursor >= len(product.VariantGroups) {
		return e.resetToWelcome(tenant, session)
	}

	group := product.VariantGroups[sel.GroupCursor]
	idx, ok := parseIndex(input, len(group.Options))
	if !ok {
		return []string{fmt.Sprintf("🤔 Please reply with a number between 1 and %d for %s.", len(group.Options), group.Name)}, true, nil
	}

	sel.Labels = append(sel.Labels, group.Options[idx].Label)
	sel.GroupCursor++

	if sel.GroupCursor < len(product.VariantGroups) {
		session.Context = models.StepContext{Data: sel}
		return []string{renderVariantGroup(product.Name, &product.VariantGroups[sel.GroupCursor])}, true, nil
	}

	e.addCartLine(session, product, sel.Labels)
	session.Context = models.StepContext{}
	e.transition(session, models.StepCart)
	return []string{e.renderCart(session)}, true, nil
}

func (e *ConversationEngine) handleCartMenu(tenant *models.Tenant, session *models.ConversationSession, input string) ([]string, bool, error) {
	switch input {
	case "1": // add more
		listReply, browse, err := e.renderCategories(tenant)
		if err != nil {
			return nil, false, err
		}
		if browse == nil {
			return []string{"😔 We're not taking more orders right now. Reply 2 to checkout or 3 to clear your cart."}, true, nil
		}
		session.Context = models.StepContext{Data: *browse}
		e.transition(session, models.StepCategorySelect)
		return []string{listReply}, true, nil

	case "2": // checkout
		// Only the step transition happens here; HandleInbound runs the
		// order side effects once the transition is committed.
		e.transition(session, models.StepCheckout)
		return nil, true, nil

	case "3": // clear cart, back to welcome
		session.Cart = nil
		session.Context = models.StepContext{}
		e.transition(session, models.StepWelcome)
		return []string{"🧹 Cart cleared! Say hi whenever you want to start a new order."}, true, nil

	default:
		return []string{cartMenu()}, true, nil
	}
}

// finalizeCheckout materializes the order, requests a payment link (falling
// back to the tenant's static link on failure) and completes the session.
// It runs outside the reprocessing loop, after the checkout transition has
// been committed, so it executes at most once per checkout message.
func (e *ConversationEngine) finalizeCheckout(tenant *models.Tenant, session *models.ConversationSession) ([]string, error) {
	order, err := e.orders.Materialize(session)
	if err != nil {
		if apperrors.IsValidation(err) {
			session.Context = models.StepContext{}
			e.transition(session, models.StepWelcome)
			if serr := e.saveCheckoutOutcome(session); serr != nil {
				log.Printf("⚠️  Failed to persist checkout reset for %s: %v", session.CustomerPhone, serr)
			}
			return []string{"🛒 Your cart is empty - nothing to check out. Say hi to start a new order!"}, nil
		}
		return nil, err
	}

	link := e.payments.LinkForOrder(tenant, order)

	session.Cart = nil
	session.Context = models.StepContext{}
	e.transition(session, models.StepCompleted)
	if err := e.saveCheckoutOutcome(session); err != nil {
		// The order exists; still hand the customer the link.
		log.Printf("⚠️  Failed to persist checkout completion for %s: %v", session.CustomerPhone, err)
	}

	reply := fmt.Sprintf(
		"✅ Order *%s* placed!\n\nTotal: %s\n\n💳 Pay here to confirm your order:\n%s",
		order.OrderNumber, formatMoney(order.Total, order.Currency), link,
	)
	return []string{reply}, nil
}

// saveCheckoutOutcome writes the post-checkout session state. A version
// conflict here must not re-run the checkout side effects, so the outcome
// is force-written over whatever state won in the meantime.
func (e *ConversationEngine) saveCheckoutOutcome(session *models.ConversationSession) error {
	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := e.store.UpdateSession(session)
		if err != storage.ErrVersionConflict {
			return err
		}
		fresh, gerr := e.store.GetSession(session.TenantID, session.CustomerPhone)
		if gerr != nil {
			return gerr
		}
		session.Version = fresh.Version
	}
	return fmt.Errorf("checkout outcome for %s kept conflicting after %d attempts", session.CustomerPhone, maxAttempts)
}

func (e *ConversationEngine) resetToWelcome(tenant *models.Tenant, session *models.ConversationSession) ([]string, bool, error) {
	session.Context = models.StepContext{}
	e.transition(session, models.StepWelcome)
	replies, err := e.handleWelcome(tenant, session)
	return replies, true, err
}

func (e *ConversationEngine) transition(session *models.ConversationSession, next string) {
	session.PreviousStep = session.CurrentStep
	session.CurrentStep = next
}

func (e *ConversationEngine) addCartLine(session *models.ConversationSession, product *models.Product, labels []string) {
	price := LinePrice(product, labels)
	name := product.Name
	if len(labels) > 0 {
		name = fmt.Sprintf("%s (%s)", product.Name, strings.Join(labels, ", "))
	}

	// Repeated adds create additional lines, never quantity increments.
	session.Cart = append(session.Cart, models.CartLine{
		ProductID:     product.ID,
		Name:          name,
		Quantity:      1,
		UnitPrice:     product.BasePrice,
		Currency:      product.Currency,
		VariantLabels: append([]string(nil), labels...),
		Subtotal:      price,
	})
}

func (e *ConversationEngine) renderCategories(tenant *models.Tenant) (string, *models.CategoryBrowse, error) {
	categories, err := e.catalog.Categories(tenant.ID)
	if err != nil {
		return "", nil, err
	}
	if len(categories) == 0 {
		return "", nil, nil
	}
	if len(categories) > e.maxListSize {
		categories = categories[:e.maxListSize]
	}

	refs := make([]models.CategoryRef, 0, len(categories))
	var sb strings.Builder
	sb.WriteString("📋 What would you like to order?\n\n")
	for i, category := range categories {
		refs = append(refs, models.CategoryRef{ID: category.ID, Name: category.Name})
		fmt.Fprintf(&sb, "%d. %s\n", i+1, category.Name)
	}
	sb.WriteString("\nReply with a number or category name.")

	return sb.String(), &models.CategoryBrowse{Categories: refs}, nil
}

func (e *ConversationEngine) renderCart(session *models.ConversationSession) string {
	var sb strings.Builder
	sb.WriteString("🛒 *Your cart*\n\n")

	currency := ""
	for i, line := range session.Cart {
		currency = line.Currency
		fmt.Fprintf(&sb, "%d. %s - %s\n", i+1, line.Name, formatMoney(line.Subtotal, line.Currency))
	}
	fmt.Fprintf(&sb, "\nTotal: %s\n\n", formatMoney(CartTotal(session.Cart), currency))
	sb.WriteString(cartMenu())

	return sb.String()
}

func cartMenu() string {
	return "1. ➕ Add more items\n2. ✅ Checkout\n3. 🗑️ Clear cart"
}

// deliver sends replies through the gateway. A lapsed messaging window
// degrades to a template message; other send failures are logged and the
// webhook still acknowledges (the provider must not redeliver).
func (e *ConversationEngine) deliver(tenantID, to string, replies []string) {
	for _, reply := range replies {
		if _, err := e.messenger.SendText(tenantID, to, reply); err != nil {
			if apperrors.IsWindowExpired(err) {
				if _, terr := e.messenger.SendTemplate(tenantID, to, "order_update", nil); terr != nil {
					log.Printf("❌ Template fallback failed for %s: %v", to, terr)
				}
				continue
			}
			log.Printf("❌ Failed to send reply to %s (tenant %s): %v", to, tenantID, err)
		}
	}
}

func matchCategory(categories []models.CategoryRef, input string) *models.CategoryRef {
	if idx, ok := parseIndex(input, len(categories)); ok {
		return &categories[idx]
	}

	needle := strings.ToLower(strings.TrimSpace(input))
	if needle == "" {
		return nil
	}
	for i := range categories {
		if strings.Contains(strings.ToLower(categories[i].Name), needle) {
			return &categories[i]
		}
	}
	return nil
}

// parseIndex interprets input as a 1-based index into a rendered list.
func parseIndex(input string, size int) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n < 1 || n > size {
		return 0, false
	}
	return n - 1, true
}

func renderVariantGroup(productName string, group *models.VariantGroup) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "⚙️ *%s* - choose %s:\n\n", productName, group.Name)
	for i, option := range group.Options {
		if option.PriceModifier != 0 {
			fmt.Fprintf(&sb, "%d. %s (%+.2f)\n", i+1, option.Label, option.PriceModifier)
		} else {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, option.Label)
		}
	}
	return sb.String()
}

func formatMoney(amount float64, currency string) string {
	if currency == "" {
		return fmt.Sprintf("%.2f", amount)
	}
	return fmt.Sprintf("%.2f %s", amount, currency)
}
