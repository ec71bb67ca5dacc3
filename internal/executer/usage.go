package executer

var usages = map[string]string{
	"login":          "login [--auth-code=XXXX] email [password] | exportedfolderurl#key | session",
	"logout":         "logout [--keep-session]",
	"session":        "session",
	"whoami":         "whoami [-l]",
	"reload":         "reload",
	"cd":             "cd [remotepath]",
	"pwd":            "pwd",
	"lcd":            "lcd [localpath]",
	"lpwd":           "lpwd",
	"ls":             "ls [-halRr] [--show-handles] [--tree] [--versions] [remotepath] [--show-creation-time] [--time-format=FORMAT]",
	"tree":           "tree [remotepath] [--show-handles]",
	"mkdir":          "mkdir [-p] remotepath",
	"rm":             "rm [-r] [-f] remotepath",
	"mv":             "mv srcremotepath [srcremotepath2 srcremotepath3 ..] dstremotepath",
	"cp":             "cp srcremotepath [srcremotepath2 srcremotepath3 ..] dstremotepath|dstemail:",
	"du":             "du [-h] [--versions] [remotepath remotepath2 remotepath3 ... ] [--path-display-size=N]",
	"find":           "find [remotepath] [-l] [--pattern=PATTERN] [--type=d|f] [--mtime=TIMECONSTRAIN] [--size=SIZECONSTRAIN] [--show-handles|--print-only-handles] [--time-format=FORMAT]",
	"cat":            "cat remotepath1 remotepath2 ...",
	"deleteversions": "deleteversions [-f] (--all | remotepath1 remotepath2 ...)",
	"get":            "get [-m] [-q] [--ignore-quota-warn] [--password=PASSWORD] exportedlink|remotepath [localpath]",
	"put":            "put [-c] [-q] [--ignore-quota-warn] localfile [localfile2 localfile3 ...] [dstremotepath]",
	"transfers":      "transfers [-c TAG|-a] | [-r TAG|-a] | [-p TAG|-a] [--only-downloads | --only-uploads] [SHOWOPTIONS]",
	"downloads":      "downloads [--purge] [--show-subtransfers] [--limit=N] [--path-display-size=N] [ID|TAG]",
	"speedlimit":     "speedlimit [-u|-d|--upload-connections|--download-connections] [-h] [NEWLIMIT]",
	"export":         "export [-d|-a [--writable] [-f] [--expire=TIMEDELAY] [--password=PASSWORD]] [remotepath]",
	"sync":           "sync [localpath dstremotepath| [-dpe] [ID|localpath]] [--show-handles] [--path-display-size=N]",
	"sync-ignore":    "sync-ignore [--show|[--add|--remove] filter1 filter2 ...] (ID|localpath|DEFAULT)",
	"sync-issues":    "sync-issues [[--detail (ID|--all)] [--limit=rowcount] [--disable-path-collapse]] | [--enable-warning|--disable-warning]",
	"backup":         "backup (localpath remotepath --period=\"PERIODSTRING\" --num-backups=N | [-lhda] [TAG|localpath] [--period=\"PERIODSTRING\"] [--num-backups=N]) [--time-format=FORMAT]",
	"exclude":        "exclude [(-a|-d) pattern1 pattern2 pattern3]",
	"log":            "log [-sc] level",
	"debug":          "debug",
	"version":        "version [-l][-c]",
	"errorcode":      "errorcode number",
	"help":           "help [-f|-ff|--non-interactive|--upgrade|--paths] [--show-all-options]",
	"configure":      "configure [key [value]]",
	"df":             "df [-h]",
	"echo":           "echo [--log-as-err] message",
	"completion":     "completion partial command line",
	"clear":          "clear",
	"exit":           "exit [--only-shell]",
	"quit":           "quit [--only-shell]",
}

// Usage returns the one line synopsis of a command.
func Usage(name string) string {
	if u, ok := usages[name]; ok {
		return u
	}
	return name
}
