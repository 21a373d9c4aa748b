//go:build !linux

package app

import logx "crosspub/pkg/logx"

func notifyReady(log logx.Logger)    {}
func notifyStopping(log logx.Logger) {}
