package core

import (
	"context"
	"fmt"
)

// PostTaskAndReply executes task on targetRunner and, once it completes
// without panicking, posts reply to replyRunner. If the task panics the reply
// is never posted.
//
// The usual shape: do background work on a pool sequence, then deliver the
// result on the sequence that owns the state being updated.
func PostTaskAndReply(targetRunner TaskRunner, task Task, replyRunner TaskRunner, reply Task) {
	if targetRunner == nil {
		panic("core: PostTaskAndReply requires a target runner")
	}
	if replyRunner == nil {
		// No reply runner specified, just execute the task
		targetRunner.PostTask(task)
		return
	}

	wrapped := func(ctx context.Context) {
		panicked := true

		func() {
			defer func() {
				if r := recover(); r != nil {
					fmt.Printf("[TaskAndReply] Task panicked, reply will not run: %v\n", r)
				}
			}()
			task(ctx)
			panicked = false
		}()

		if !panicked {
			replyRunner.PostTask(reply)
		}
	}

	targetRunner.PostTask(wrapped)
}
