package otherwise

import "embed"

// StaticAssets holds the stylesheet and scripts served under /public/.
//
//go:embed static/*
var StaticAssets embed.FS
