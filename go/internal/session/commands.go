package session

import (
	"github.com/mcdev12/crossroads/go/internal/models"
	"github.com/mcdev12/crossroads/go/internal/session/events"
)

// command is everything the session goroutine consumes.
type command interface{ isCommand() }

type result struct {
	player models.Player
	view   events.SessionView
	err    error
}

type joinCmd struct {
	connectionID string
	name         string
	token        string
	outbox       chan<- events.Message
	reply        chan result
}

type leaveCmd struct {
	connectionID string
	// release forgets the connection id once it has left.
	release bool
	reply   chan result
}

type voteCmd struct {
	connectionID string
	choiceID     string
	reply        chan result
}

// startCmd with an empty connectionID comes from the admin API.
type startCmd struct {
	connectionID string
	reply        chan result
}

type loadSceneCmd struct {
	sceneID string
	reply   chan result
}

type stateCmd struct {
	reply chan result
}

type disposeCmd struct {
	reason string
	reply  chan result
}

type timerExpired struct{ generation uint64 }

type idleExpired struct{ generation uint64 }

func (joinCmd) isCommand()      {}
func (leaveCmd) isCommand()     {}
func (voteCmd) isCommand()      {}
func (startCmd) isCommand()     {}
func (loadSceneCmd) isCommand() {}
func (stateCmd) isCommand()     {}
func (disposeCmd) isCommand()   {}
func (timerExpired) isCommand() {}
func (idleExpired) isCommand()  {}
