package executor

func NewShellManager(settings Settings, fetcher Fetcher) Manager {
	return &manager{kind: KindShell, settings: settings, fetcher: fetcher}
}
