package actors

import (
	"sync"

	"github.com/sasha-s/go-deadlock"
)

var terminateChan chan struct{}

func SetTerminateChan(term chan struct{}) {
	terminateChan = term
}

func GetTerminateChan() chan struct{} {
	return terminateChan
}

var wg = &deadlock.WaitGroup{}

func GetWaitGroup() *deadlock.WaitGroup {
	return wg
}

// Shutdown closes the terminate channel exactly once and waits for every
// background loop that registered on the waitgroup.
var shutdownOnce = &sync.Once{}

func Shutdown() {
	shutdownOnce.Do(func() {
		if terminateChan == nil {
			return
		}
		//the cli listener may have closed it already
		select {
		case <-terminateChan:
		default:
			close(terminateChan)
		}
	})
	wg.Wait()
}
