package testutil

import (
	"net"
	"strconv"
	"sync"
)

// GetAvailablePort returns a TCP port that was free a moment ago.
func GetAvailablePort() (string, error) {
	a, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return "", err
	}
	l, err := net.ListenTCP("tcp", a)
	if err != nil {
		return "", err
	}
	defer l.Close()
	return strconv.Itoa(l.Addr().(*net.TCPAddr).Port), nil
}

// CombineErrChan merges the errors of every channel into one. The result is
// closed once all inputs are closed.
func CombineErrChan(chans ...<-chan error) <-chan error {
	errChan := make(chan error)

	wg := new(sync.WaitGroup)
	wg.Add(len(chans))
	for _, c := range chans {
		go func(c <-chan error) {
			defer wg.Done()
			for err := range c {
				errChan <- err
			}
		}(c)
	}

	go func() {
		wg.Wait()
		close(errChan)
	}()
	return errChan
}
