package routes

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/daoledger/daoledger/internal/amount"
	"github.com/daoledger/daoledger/internal/engine"
	"github.com/daoledger/daoledger/internal/middleware"
)

type transferHandler struct {
	engine *engine.Engine
	wait   time.Duration
}

type transferRequest struct {
	Receiver string        `json:"receiver" validate:"required,account_id"`
	Amount   amount.Amount `json:"amount"`
	Memo     string        `json:"memo"`
	Msg      string        `json:"msg"`
}

// RegisterTransferRoutes wires plain and transfer-and-call endpoints.
// receiverTimeout bounds how long a waiting notify request blocks.
func RegisterTransferRoutes(r fiber.Router, e *engine.Engine, receiverTimeout time.Duration) {
	if receiverTimeout <= 0 {
		receiverTimeout = 5 * time.Second
	}
	h := &transferHandler{engine: e, wait: 2 * receiverTimeout}
	r.Post("/transfers", h.transfer)
	r.Post("/transfers/notify", h.notify)
}

func (h *transferHandler) transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	caller := middleware.CallerID(c)
	if err := h.engine.Transfer(c.UserContext(), caller, req.Receiver, req.Amount, req.Memo); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"sender":         caller,
		"receiver":       req.Receiver,
		"amount":         req.Amount,
		"sender_balance": h.engine.BalanceOf(caller),
	})
}

// notify initiates a transfer-and-call. With ?wait=true the response carries
// the settled outcome; otherwise it returns as soon as phase one commits.
func (h *transferHandler) notify(c *fiber.Ctx) error {
	var req transferRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ticket, err := h.engine.TransferCall(c.UserContext(), middleware.CallerID(c), req.Receiver, req.Amount, req.Memo, req.Msg)
	if err != nil {
		return err
	}
	if !c.QueryBool("wait") {
		return c.Status(http.StatusAccepted).JSON(fiber.Map{
			"id":     ticket.ID,
			"status": "pending",
		})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.wait)
	defer cancel()
	outcome, err := ticket.Wait(ctx)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return c.Status(http.StatusAccepted).JSON(fiber.Map{
			"id":     ticket.ID,
			"status": "pending",
		})
	case err != nil:
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"id":       ticket.ID,
		"status":   "settled",
		"used":     outcome.Used,
		"refunded": outcome.Refunded,
	})
}
