package builtin

import (
	"errors"
	"fmt"

	"github.com/autoflowhq/autoflow/runtime/hooks"
	"github.com/autoflowhq/autoflow/runtime/node"
	"github.com/autoflowhq/autoflow/runtime/telemetry"
	"github.com/autoflowhq/autoflow/runtime/workflow"
)

// Deps collects the dependencies of the built-in handlers. Bus is required;
// every adapter is optional, and node kinds whose adapter is missing fail at
// execution time rather than at registration.
type Deps struct {
	// Bus publishes the node lifecycle and adapter events. Required.
	Bus hooks.Bus
	// Logger receives handler diagnostics. Nil discards.
	Logger telemetry.Logger
	// AI routes AIProcessor completions. Nil leaves the kind unregistered.
	AI AIClient
	// HTTP performs http_request actions.
	HTTP HTTPDoer
	// Email performs email actions.
	Email EmailSender
	// Database performs database actions.
	Database DatabaseWriter
	// Files backs file operation nodes.
	Files Service
	// Forms backs form builder nodes.
	Forms Service
	// Transforms backs data transform nodes.
	Transforms Service
	// Push backs push notification nodes.
	Push Service
	// EmailAutomation backs email automation nodes.
	EmailAutomation Service
	// Timer customizes the timer handler, e.g. with a test scheduler.
	Timer []TimerOption
}

// Register binds every built-in handler to its node kind in the registry.
func Register(reg *node.Registry, deps Deps) error {
	if reg == nil {
		return errors.New("registry is required")
	}
	if deps.Bus == nil {
		return errors.New("event bus is required")
	}
	human, err := NewHumanTaskHandler(deps.Bus)
	if err != nil {
		return err
	}
	timer, err := NewTimerHandler(deps.Bus, deps.Timer...)
	if err != nil {
		return err
	}
	handlers := map[workflow.NodeKind]node.Handler{
		workflow.KindTrigger:  NewTriggerHandler(),
		workflow.KindDecision: NewDecisionHandler(deps.Logger),
		workflow.KindHumanTask: human,
		workflow.KindTimer:     timer,
		workflow.KindAction: NewActionHandler(ActionOptions{
			HTTP:     deps.HTTP,
			Email:    deps.Email,
			Database: deps.Database,
			Logger:   deps.Logger,
		}),
		workflow.KindFileOperations:   NewFileOperationsHandler(deps.Files, deps.Bus),
		workflow.KindFormBuilder:      NewFormBuilderHandler(deps.Forms, deps.Bus),
		workflow.KindDataTransform:    NewDataTransformHandler(deps.Transforms, deps.Bus),
		workflow.KindPushNotification: NewPushNotificationHandler(deps.Push, deps.Bus),
		workflow.KindEmailAutomation:  NewEmailAutomationHandler(deps.EmailAutomation, deps.Bus),
	}
	if deps.AI != nil {
		ai, err := NewAIHandler(deps.AI, deps.Bus)
		if err != nil {
			return err
		}
		handlers[workflow.KindAIProcessor] = ai
	}
	for kind, h := range handlers {
		if err := reg.Register(kind, h); err != nil {
			return fmt.Errorf("register %s: %w", kind, err)
		}
	}
	return nil
}
