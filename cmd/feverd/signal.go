package main

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
)

func waitToShutdown(wg *sync.WaitGroup,
	errC chan error,
	shutdownC, graceShutdownC chan struct{},
	log *zerolog.Logger,
) error {
	err := waitForSignal(errC, shutdownC, graceShutdownC, log)
	if err != nil {
		log.Err(err).Msg("Quitting due to error")
	} else {
		log.Info().Msg("Quitting...")
	}
	// Wait for clean exit, discarding all errors
	go func() {
		for range errC {
		}
	}()
	wg.Wait()
	return err
}

// waitForSignal notifies all routines to shut down by closing shutdownC when
// one of the routines exits with an error, when the process receives
// SIGTERM/SIGINT, or when an installed update relaunched the process and
// closed graceShutdownC.
func waitForSignal(errC chan error, shutdownC, graceShutdownC chan struct{}, log *zerolog.Logger) error {
	signals := make(chan os.Signal, 10)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(signals)

	select {
	case err := <-errC:
		log.Info().Msgf("terminating due to error: %v", err)
		close(shutdownC)
		return err
	case s := <-signals:
		log.Info().Msgf("terminating due to signal %s", s)
		close(shutdownC)
	case <-graceShutdownC:
		log.Info().Msg("terminating after update relaunch")
		close(shutdownC)
	case <-shutdownC:
	}
	return nil
}
