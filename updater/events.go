package updater

// Translation of platform-level update events into status broadcasts. One
// status event is published per platform event, in arrival order; nothing is
// reordered or coalesced.

func (c *Coordinator) handleAvailable(info Info) {
	c.log.Info().Msgf("update available: %s", info.Version)
	c.publish(StatusEvent{Status: StatusAvailable, Info: &info})
}

func (c *Coordinator) handleProgress(progress Progress) {
	downloadTransferred.Set(float64(progress.Transferred))
	downloadPercent.Set(progress.Percent)
	c.publish(StatusEvent{Status: StatusDownloading, Progress: &progress})
}

func (c *Coordinator) handleNotAvailable(info Info) {
	c.checkSettled("not_available")
	c.publish(StatusEvent{Status: StatusNotAvailable, Info: &info})
}

func (c *Coordinator) handleDownloaded(info Info) {
	c.checkSettled("downloaded")

	target := ExtractVersion(info.ReleaseName)
	if target == "" {
		target = info.Version
	}
	message := UpgradeMessage(c.currentVersion, target)

	c.publish(StatusEvent{Status: StatusDownloaded, Info: &info})

	if c.prompter.PresentRestartPrompt(message) == DecisionRestart {
		err := c.platform.QuitAndInstall(InstallOptions{
			SilentRelaunch: true,
			ForceClose:     true,
		})
		if err != nil {
			c.log.Error().Msgf("restart into update failed: %s", err)
			c.publish(StatusEvent{Status: StatusError, Error: err.Error()})
		}
		return
	}
	// Deferred: the downloaded update stays pending until the next install
	// request.
	c.log.Info().Msgf("update %s deferred by user", info.Version)
}

func (c *Coordinator) handleError(err error) {
	c.checkSettled("error")
	// %+v carries the stack when the platform wrapped one in.
	c.log.Error().Msgf("update error: %+v", err)
	c.publish(StatusEvent{Status: StatusError, Error: err.Error()})

	// A blocking dialog is noisy in test and development runs, so only
	// production builds surface one.
	if c.env.IsProduction() {
		c.prompter.PresentError(err.Error())
	}
}

// checkSettled marks the scheduled check slot free again once a check reaches
// a terminal event, and records the outcome.
func (c *Coordinator) checkSettled(outcome string) {
	c.scheduledInFlight.Store(false)
	checksTotal.WithLabelValues(outcome).Inc()
}
